// Package scheduler runs periodic AIS checks for due tracking tasks and
// serves manual check requests.
package scheduler

import (
	"context"
	"time"

	"github.com/saviobatista/seatime-logger/internal/types"
)

// PositionFetcher queries the AIS provider for one vessel
type PositionFetcher interface {
	FetchPosition(ctx context.Context, mmsi string) (*types.VesselPosition, error)
}

// CheckStore appends position checks and reads a vessel's history
type CheckStore interface {
	StorePositionCheck(ctx context.Context, check *types.PositionCheck) error
	GetPositionChecksSince(ctx context.Context, vesselID string, since time.Time) ([]types.PositionCheck, error)
}

// PositionCache keeps per-vessel poll diagnostics
type PositionCache interface {
	StoreLatestPosition(ctx context.Context, check *types.PositionCheck) error
	SetPollFailure(ctx context.Context, failure *types.PollFailure) error
	ClearPollFailure(ctx context.Context, vesselID string) error
}

// EventPublisher announces stored checks and created entries
type EventPublisher interface {
	PublishPositionCheck(check *types.PositionCheck) error
	PublishSeaTimeEntry(entry *types.SeaTimeEntry) error
}

// TaskSource lists due tasks and records their runs
type TaskSource interface {
	DueTasks(ctx context.Context, now time.Time) ([]*types.TrackingTask, error)
	MarkRun(ctx context.Context, taskID string, lastRun, nextRun time.Time) error
}

// VesselSource looks up vessels
type VesselSource interface {
	GetVessel(ctx context.Context, id string) (*types.Vessel, error)
}
