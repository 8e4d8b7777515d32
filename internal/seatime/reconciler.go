package seatime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/movement"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// MinUnderwayHours is the least underway time that earns a sea-time entry
const MinUnderwayHours = 4.0

// EntryStore reads and inserts sea-time entries
type EntryStore interface {
	GetEntriesForUser(ctx context.Context, userID string) ([]types.SeaTimeEntry, error)
	CreateSeaTimeEntry(ctx context.Context, entry *types.SeaTimeEntry) error
}

// Decide applies the scheduled policy gates in order. It does not assign
// an id or timestamps to the proposed entry.
func Decide(vessel *types.Vessel, analysis movement.Analysis, existing []types.SeaTimeEntry, loc *time.Location) Decision {
	if analysis.TotalHours < MinUnderwayHours || analysis.Start == nil || analysis.End == nil {
		return Decision{Outcome: OutcomeInsufficientHours}
	}

	start, end := analysis.Start, analysis.End
	if !start.HasPosition() || !end.HasPosition() ||
		(*start.Latitude == *end.Latitude && *start.Longitude == *end.Longitude) {
		return Decision{Outcome: OutcomeStationary}
	}

	for i := range existing {
		if sameDay(existing[i].StartTime, start.CheckTime, loc) {
			e := existing[i]
			return Decision{Outcome: OutcomeDuplicateDay, Existing: &e}
		}
	}

	endTime := end.CheckTime
	hours := analysis.TotalHours
	return Decision{
		Outcome: OutcomeCreated,
		Entry: &types.SeaTimeEntry{
			UserID:         vessel.UserID,
			VesselID:       vessel.ID,
			StartTime:      start.CheckTime,
			EndTime:        &endTime,
			DurationHours:  &hours,
			Status:         types.EntryStatusPending,
			StartLatitude:  coord(start.Latitude),
			StartLongitude: coord(start.Longitude),
			EndLatitude:    coord(end.Latitude),
			EndLongitude:   coord(end.Longitude),
			ServiceType:    types.ServiceTypeActualSea,
			Notes:          fmt.Sprintf("Detected from AIS movement: %.1f hours underway", hours),
		},
	}
}

// Reconciler is the scheduled, insert-only sea-time policy
type Reconciler struct {
	store EntryStore
	loc   *time.Location
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// NewReconciler creates a Reconciler; calendar days are computed in loc
func NewReconciler(store EntryStore, loc *time.Location, log logger.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{
		store: store,
		loc:   loc,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Reconcile inserts a pending entry when the analysis qualifies and the
// user has no entry starting on the same day. Existing entries are never
// modified.
func (r *Reconciler) Reconcile(ctx context.Context, vessel *types.Vessel, analysis movement.Analysis) (Decision, error) {
	if analysis.TotalHours < MinUnderwayHours {
		return Decision{Outcome: OutcomeInsufficientHours}, nil
	}

	existing, err := r.store.GetEntriesForUser(ctx, vessel.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load entries for user %s: %w", vessel.UserID, err)
	}

	decision := Decide(vessel, analysis, existing, r.loc)
	if decision.Outcome != OutcomeCreated {
		r.log.Debug("No sea-time entry created",
			"vessel_id", vessel.ID,
			"outcome", decision.Outcome,
			"underway_hours", analysis.TotalHours)
		return decision, nil
	}

	now := r.now()
	decision.Entry.ID = r.newID()
	decision.Entry.CreatedAt = now
	decision.Entry.UpdatedAt = now
	if err := r.store.CreateSeaTimeEntry(ctx, decision.Entry); err != nil {
		return Decision{}, err
	}

	r.log.Info("Created sea-time entry",
		"vessel_id", vessel.ID,
		"entry_id", decision.Entry.ID,
		"start", decision.Entry.StartTime,
		"duration_hours", analysis.TotalHours)
	return decision, nil
}
