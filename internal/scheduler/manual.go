package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/movement"
	"github.com/saviobatista/seatime-logger/internal/seatime"
	"github.com/saviobatista/seatime-logger/internal/stats"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// ManualCheckTimeout bounds one manual check triggered by a bus request
const ManualCheckTimeout = 30 * time.Second

// ManualResult is the outcome of an on-demand check
type ManualResult struct {
	Check    *types.PositionCheck `json:"check"`
	Decision seatime.Decision     `json:"decision"`
	Analysis movement.Analysis    `json:"analysis"`
}

// ManualChecker polls a vessel on request and applies the open/close policy
type ManualChecker struct {
	vessels   VesselSource
	checks    CheckStore
	poller    *Poller
	toggler   *seatime.Toggler
	publisher EventPublisher
	stats     *stats.Stats
	log       logger.Logger
}

// NewManualChecker creates a ManualChecker. publisher may be nil.
func NewManualChecker(vessels VesselSource, checks CheckStore, poller *Poller, toggler *seatime.Toggler, publisher EventPublisher, st *stats.Stats, log logger.Logger) *ManualChecker {
	return &ManualChecker{
		vessels:   vessels,
		checks:    checks,
		poller:    poller,
		toggler:   toggler,
		publisher: publisher,
		stats:     st,
		log:       log,
	}
}

// Check polls the vessel now, toggles its open entry and returns the
// trailing analysis alongside for diagnostics
func (m *ManualChecker) Check(ctx context.Context, vesselID string) (*ManualResult, error) {
	m.stats.IncrementManualChecks()

	vessel, err := m.vessels.GetVessel(ctx, vesselID)
	if err != nil {
		return nil, err
	}

	check, err := m.poller.Poll(ctx, vessel, types.CheckSourceManual)
	if err != nil {
		return nil, err
	}

	decision, err := m.toggler.Apply(ctx, vessel, check)
	if err != nil {
		return nil, err
	}
	if decision.Outcome == seatime.OutcomeOpened {
		m.stats.IncrementEntriesCreated(stats.PolicyManual)
		if m.publisher != nil {
			if err := m.publisher.PublishSeaTimeEntry(decision.Entry); err != nil {
				m.log.Warn("Failed to publish sea-time entry", "vessel_id", vesselID, "error", err)
			}
		}
	}

	history, err := m.checks.GetPositionChecksSince(ctx, vessel.ID, check.CheckTime.Add(-movement.Lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load check history: %w", err)
	}

	return &ManualResult{
		Check:    check,
		Decision: decision,
		Analysis: movement.Analyze(history, check.CheckTime),
	}, nil
}

// HandleRequest returns a bus handler that runs a check per request
func (m *ManualChecker) HandleRequest(ctx context.Context) func(*types.CheckRequest) {
	return func(req *types.CheckRequest) {
		reqCtx, cancel := context.WithTimeout(ctx, ManualCheckTimeout)
		defer cancel()

		res, err := m.Check(reqCtx, req.VesselID)
		if err != nil {
			m.log.Error("Manual check failed",
				"request_id", req.ID,
				"vessel_id", req.VesselID,
				"error", err)
			return
		}
		m.log.Info("Manual check completed",
			"request_id", req.ID,
			"vessel_id", req.VesselID,
			"moving", res.Check.IsMoving,
			"outcome", res.Decision.Outcome,
			"underway_hours", res.Analysis.TotalHours)
	}
}
