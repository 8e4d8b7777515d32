package seatime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// OpenEntryStore opens and closes a vessel's sea-time entry
type OpenEntryStore interface {
	GetOpenSeaTimeEntry(ctx context.Context, vesselID string) (*types.SeaTimeEntry, error)
	CreateSeaTimeEntry(ctx context.Context, entry *types.SeaTimeEntry) error
	CloseSeaTimeEntry(ctx context.Context, entry *types.SeaTimeEntry) error
}

// Toggler is the manual-check policy: a moving check opens an entry and a
// stationary check closes the open one.
type Toggler struct {
	store OpenEntryStore
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// NewToggler creates a Toggler
func NewToggler(store OpenEntryStore, log logger.Logger) *Toggler {
	return &Toggler{
		store: store,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Apply opens or closes the vessel's entry based on one check
func (t *Toggler) Apply(ctx context.Context, vessel *types.Vessel, check *types.PositionCheck) (Decision, error) {
	open, err := t.store.GetOpenSeaTimeEntry(ctx, vessel.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load open entry for vessel %s: %w", vessel.ID, err)
	}

	switch {
	case check.IsMoving && open == nil:
		return t.open(ctx, vessel, check)
	case !check.IsMoving && open != nil:
		return t.close(ctx, open, check)
	default:
		return Decision{Outcome: OutcomeUnchanged, Existing: open}, nil
	}
}

func (t *Toggler) open(ctx context.Context, vessel *types.Vessel, check *types.PositionCheck) (Decision, error) {
	now := t.now()
	entry := &types.SeaTimeEntry{
		ID:             t.newID(),
		UserID:         vessel.UserID,
		VesselID:       vessel.ID,
		StartTime:      check.CheckTime,
		Status:         types.EntryStatusPending,
		StartLatitude:  coord(check.Latitude),
		StartLongitude: coord(check.Longitude),
		ServiceType:    types.ServiceTypeActualSea,
		Notes:          "Opened by manual AIS check",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.store.CreateSeaTimeEntry(ctx, entry); err != nil {
		return Decision{}, err
	}

	t.log.Info("Opened sea-time entry", "vessel_id", vessel.ID, "entry_id", entry.ID)
	return Decision{Outcome: OutcomeOpened, Entry: entry}, nil
}

func (t *Toggler) close(ctx context.Context, open *types.SeaTimeEntry, check *types.PositionCheck) (Decision, error) {
	closed := *open
	end := check.CheckTime
	hours := end.Sub(open.StartTime).Hours()
	if hours < 0 {
		hours = 0
	}
	closed.EndTime = &end
	closed.DurationHours = &hours
	closed.EndLatitude = coord(check.Latitude)
	closed.EndLongitude = coord(check.Longitude)
	closed.UpdatedAt = t.now()

	if err := t.store.CloseSeaTimeEntry(ctx, &closed); err != nil {
		return Decision{}, err
	}

	t.log.Info("Closed sea-time entry",
		"vessel_id", open.VesselID,
		"entry_id", open.ID,
		"duration_hours", hours)
	return Decision{Outcome: OutcomeClosed, Entry: &closed, Existing: open}, nil
}
