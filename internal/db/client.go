package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/saviobatista/seatime-logger/internal/stats"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// ErrEntryNotOpen is returned when closing an entry that is already closed or missing
var ErrEntryNotOpen = errors.New("sea-time entry is not open")

// Client stores position checks, sea-time entries and scheduler stats
type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Client{db: db}, nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping verifies the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StorePositionCheck appends a position check
func (c *Client) StorePositionCheck(ctx context.Context, check *types.PositionCheck) error {
	query := `
		INSERT INTO position_checks (
			id, vessel_id, check_time, is_moving,
			speed_knots, latitude, longitude, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := c.db.ExecContext(ctx, query,
		check.ID, check.VesselID, check.CheckTime, check.IsMoving,
		nullableFloat(check.SpeedKnots), nullableFloat(check.Latitude), nullableFloat(check.Longitude),
		check.Source, check.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store position check: %w", err)
	}
	return nil
}

const positionCheckColumns = `id, vessel_id, check_time, is_moving, speed_knots, latitude, longitude, source, created_at`

// GetPositionChecksSince returns the vessel's checks at or after since, oldest first
func (c *Client) GetPositionChecksSince(ctx context.Context, vesselID string, since time.Time) ([]types.PositionCheck, error) {
	query := `
		SELECT ` + positionCheckColumns + `
		FROM position_checks
		WHERE vessel_id = $1 AND check_time >= $2
		ORDER BY check_time ASC
	`
	return c.queryPositionChecks(ctx, query, vesselID, since)
}

// GetRecentPositionChecks returns the vessel's latest checks, newest first
func (c *Client) GetRecentPositionChecks(ctx context.Context, vesselID string, limit int) ([]types.PositionCheck, error) {
	query := `
		SELECT ` + positionCheckColumns + `
		FROM position_checks
		WHERE vessel_id = $1
		ORDER BY check_time DESC
		LIMIT $2
	`
	return c.queryPositionChecks(ctx, query, vesselID, limit)
}

func (c *Client) queryPositionChecks(ctx context.Context, query string, args ...interface{}) ([]types.PositionCheck, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query position checks: %w", err)
	}
	defer rows.Close()

	var checks []types.PositionCheck
	for rows.Next() {
		var (
			check           types.PositionCheck
			speed, lat, lon sql.NullFloat64
		)
		if err := rows.Scan(
			&check.ID, &check.VesselID, &check.CheckTime, &check.IsMoving,
			&speed, &lat, &lon, &check.Source, &check.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position check: %w", err)
		}
		check.SpeedKnots = floatPtr(speed)
		check.Latitude = floatPtr(lat)
		check.Longitude = floatPtr(lon)
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

// CreateSeaTimeEntry inserts a sea-time entry
func (c *Client) CreateSeaTimeEntry(ctx context.Context, entry *types.SeaTimeEntry) error {
	query := `
		INSERT INTO sea_time_entries (
			id, user_id, vessel_id, start_time, end_time, duration_hours, status,
			start_latitude, start_longitude, end_latitude, end_longitude,
			service_type, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := c.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.VesselID, entry.StartTime, nullableTime(entry.EndTime),
		nullableFloat(entry.DurationHours), string(entry.Status),
		nullableFloat(entry.StartLatitude), nullableFloat(entry.StartLongitude),
		nullableFloat(entry.EndLatitude), nullableFloat(entry.EndLongitude),
		entry.ServiceType, entry.Notes, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sea-time entry: %w", err)
	}
	return nil
}

const seaTimeEntryColumns = `id, user_id, vessel_id, start_time, end_time, duration_hours, status,
		start_latitude, start_longitude, end_latitude, end_longitude,
		service_type, notes, created_at, updated_at`

// GetEntriesForUser returns every sea-time entry of the user across all vessels
func (c *Client) GetEntriesForUser(ctx context.Context, userID string) ([]types.SeaTimeEntry, error) {
	query := `
		SELECT ` + seaTimeEntryColumns + `
		FROM sea_time_entries
		WHERE user_id = $1
		ORDER BY start_time ASC
	`
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sea-time entries: %w", err)
	}
	defer rows.Close()

	var entries []types.SeaTimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetOpenSeaTimeEntry returns the vessel's open entry, or nil if there is none
func (c *Client) GetOpenSeaTimeEntry(ctx context.Context, vesselID string) (*types.SeaTimeEntry, error) {
	query := `
		SELECT ` + seaTimeEntryColumns + `
		FROM sea_time_entries
		WHERE vessel_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`
	entry, err := scanEntry(c.db.QueryRowContext(ctx, query, vesselID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CloseSeaTimeEntry sets the end fields of an open entry
func (c *Client) CloseSeaTimeEntry(ctx context.Context, entry *types.SeaTimeEntry) error {
	query := `
		UPDATE sea_time_entries SET
			end_time = $1, duration_hours = $2,
			end_latitude = $3, end_longitude = $4,
			updated_at = $5
		WHERE id = $6 AND end_time IS NULL
	`
	res, err := c.db.ExecContext(ctx, query,
		nullableTime(entry.EndTime), nullableFloat(entry.DurationHours),
		nullableFloat(entry.EndLatitude), nullableFloat(entry.EndLongitude),
		entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close sea-time entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close sea-time entry: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotOpen
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*types.SeaTimeEntry, error) {
	var (
		entry                        types.SeaTimeEntry
		endTime                      sql.NullTime
		duration, startLat, startLon sql.NullFloat64
		endLat, endLon               sql.NullFloat64
		status                       string
	)
	if err := row.Scan(
		&entry.ID, &entry.UserID, &entry.VesselID, &entry.StartTime, &endTime, &duration, &status,
		&startLat, &startLon, &endLat, &endLon,
		&entry.ServiceType, &entry.Notes, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sea-time entry: %w", err)
	}
	if endTime.Valid {
		t := endTime.Time
		entry.EndTime = &t
	}
	entry.Status = types.EntryStatus(status)
	entry.DurationHours = floatPtr(duration)
	entry.StartLatitude = floatPtr(startLat)
	entry.StartLongitude = floatPtr(startLon)
	entry.EndLatitude = floatPtr(endLat)
	entry.EndLongitude = floatPtr(endLon)
	return &entry, nil
}

// StoreSchedulerStats stores a scheduler statistics snapshot
func (c *Client) StoreSchedulerStats(ctx context.Context, snap stats.Snapshot) error {
	query := `
		INSERT INTO scheduler_stats (
			time, total_ticks, skipped_ticks, tasks_processed, tasks_failed,
			checks_stored, entries_created, manual_checks, poll_failures, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	failures, err := json.Marshal(snap.PollFailures)
	if err != nil {
		return fmt.Errorf("failed to encode poll failures: %w", err)
	}

	_, err = c.db.ExecContext(ctx, query,
		snap.Time,
		int64(snap.TotalTicks),
		int64(snap.SkippedTicks),
		int64(snap.TasksProcessed),
		int64(snap.TasksFailed),
		int64(snap.ChecksStored),
		int64(snap.EntriesCreated),
		int64(snap.ManualChecks),
		failures,
		int64(snap.Uptime.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store scheduler stats: %w", err)
	}
	return nil
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
