package types

import (
	"time"
)

// TaskTypeAISCheck is the only tracking task type the scheduler runs
const TaskTypeAISCheck = "ais_check"

// EntryStatus is the review state of a sea-time entry
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusConfirmed EntryStatus = "confirmed"
	EntryStatusRejected  EntryStatus = "rejected"
)

// ServiceTypeActualSea is the service type recorded for inferred sea time
const ServiceTypeActualSea = "actual_sea_service"

// Check sources
const (
	CheckSourceScheduled = "scheduled"
	CheckSourceManual    = "manual"
)

// TimestampSource tells how a provider position timestamp was obtained
type TimestampSource string

const (
	TimestampReceived TimestampSource = "received"
	TimestampUnix     TimestampSource = "unix"
	// TimestampFallback means the provider gave no usable time and the
	// wall clock was used instead.
	TimestampFallback TimestampSource = "fallback"
)

// Vessel is a ship a user serves on
type Vessel struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MMSI      string    `json:"mmsi"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackingTask schedules periodic AIS checks for one vessel
type TrackingTask struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	VesselID      string     `json:"vessel_id"`
	TaskType      string     `json:"task_type"`
	IntervalHours int        `json:"interval_hours"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	NextRun       time.Time  `json:"next_run"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Interval returns the poll interval as a duration
func (t *TrackingTask) Interval() time.Duration {
	return time.Duration(t.IntervalHours) * time.Hour
}

// IsDue reports whether the task should run at now
func (t *TrackingTask) IsDue(now time.Time) bool {
	return t.IsActive && !t.NextRun.After(now)
}

// PositionCheck is the immutable result of one successful AIS poll
type PositionCheck struct {
	ID         string    `json:"id"`
	VesselID   string    `json:"vessel_id"`
	CheckTime  time.Time `json:"check_time"`
	IsMoving   bool      `json:"is_moving"`
	SpeedKnots *float64  `json:"speed_knots,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasPosition reports whether both coordinates are known
func (c *PositionCheck) HasPosition() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// SeaTimeEntry is a block of qualifying service at sea
type SeaTimeEntry struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	VesselID       string      `json:"vessel_id"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        *time.Time  `json:"end_time,omitempty"`
	DurationHours  *float64    `json:"duration_hours,omitempty"`
	Status         EntryStatus `json:"status"`
	StartLatitude  *float64    `json:"start_latitude,omitempty"`
	StartLongitude *float64    `json:"start_longitude,omitempty"`
	EndLatitude    *float64    `json:"end_latitude,omitempty"`
	EndLongitude   *float64    `json:"end_longitude,omitempty"`
	ServiceType    string      `json:"service_type"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IsOpen reports whether the entry has not been closed yet
func (e *SeaTimeEntry) IsOpen() bool {
	return e.EndTime == nil
}

// VesselPosition is the normalized provider record for one vessel
type VesselPosition struct {
	Name            string          `json:"name"`
	MMSI            string          `json:"mmsi"`
	IMO             string          `json:"imo,omitempty"`
	SpeedKnots      *float64        `json:"speed_knots,omitempty"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	Course          *float64        `json:"course,omitempty"`
	Heading         *float64        `json:"heading,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	TimestampSource TimestampSource `json:"timestamp_source"`
	Status          string          `json:"status,omitempty"`
	Destination     string          `json:"destination,omitempty"`
	ETA             string          `json:"eta,omitempty"`
	Callsign        string          `json:"callsign,omitempty"`
	ShipType        string          `json:"ship_type,omitempty"`
	Flag            string          `json:"flag,omitempty"`
	IsMoving        bool            `json:"is_moving"`
}

// APICallLog is one audited provider request
type APICallLog struct {
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
	MMSI         string    `json:"mmsi" bson:"mmsi"`
	URL          string    `json:"url" bson:"url"`
	APIKey       string    `json:"api_key" bson:"apiKey"`
	Extended     bool      `json:"extended" bson:"extended"`
	StatusCode   int       `json:"status_code" bson:"statusCode"`
	Outcome      string    `json:"outcome" bson:"outcome"`
	DurationMs   int64     `json:"duration_ms" bson:"durationMs"`
	ErrorMessage string    `json:"error,omitempty" bson:"error,omitempty"`
}

// CheckRequest asks for an immediate manual AIS check of a vessel
type CheckRequest struct {
	ID          string    `json:"id"`
	VesselID    string    `json:"vessel_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// PollFailure is the last failed poll recorded for a vessel
type PollFailure struct {
	VesselID string    `json:"vessel_id"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// MaskAPIKey hides all but the edges of a credential for logging
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
