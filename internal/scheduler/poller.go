package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/seatime-logger/internal/ais"
	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/stats"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// Poller performs one AIS poll and appends the resulting check. It is
// shared by the scheduled and manual paths.
type Poller struct {
	fetcher   PositionFetcher
	checks    CheckStore
	cache     PositionCache
	publisher EventPublisher
	stats     *stats.Stats
	log       logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewPoller creates a Poller. cache and publisher may be nil.
func NewPoller(fetcher PositionFetcher, checks CheckStore, cache PositionCache, publisher EventPublisher, st *stats.Stats, log logger.Logger) *Poller {
	return &Poller{
		fetcher:   fetcher,
		checks:    checks,
		cache:     cache,
		publisher: publisher,
		stats:     st,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Poll fetches the vessel's position and stores it as a check made now.
// Provider failures are returned unchanged so callers can classify them.
func (p *Poller) Poll(ctx context.Context, vessel *types.Vessel, source string) (*types.PositionCheck, error) {
	pos, err := p.fetcher.FetchPosition(ctx, vessel.MMSI)
	if err != nil {
		p.recordFailure(ctx, vessel, err)
		return nil, err
	}

	now := p.now()
	check := &types.PositionCheck{
		ID:         p.newID(),
		VesselID:   vessel.ID,
		CheckTime:  now,
		IsMoving:   pos.IsMoving,
		SpeedKnots: pos.SpeedKnots,
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Source:     source,
		CreatedAt:  now,
	}
	if err := p.checks.StorePositionCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to store check for vessel %s: %w", vessel.ID, err)
	}
	p.stats.IncrementChecksStored()

	if p.cache != nil {
		if err := p.cache.StoreLatestPosition(ctx, check); err != nil {
			p.log.Warn("Failed to cache latest position", "vessel_id", vessel.ID, "error", err)
		}
		if err := p.cache.ClearPollFailure(ctx, vessel.ID); err != nil {
			p.log.Warn("Failed to clear poll failure", "vessel_id", vessel.ID, "error", err)
		}
	}
	if p.publisher != nil {
		if err := p.publisher.PublishPositionCheck(check); err != nil {
			p.log.Warn("Failed to publish position check", "vessel_id", vessel.ID, "error", err)
		}
	}

	p.log.Debug("Stored position check",
		"vessel_id", vessel.ID,
		"mmsi", vessel.MMSI,
		"moving", check.IsMoving,
		"has_position", check.HasPosition(),
		"timestamp_source", pos.TimestampSource)
	return check, nil
}

func (p *Poller) recordFailure(ctx context.Context, vessel *types.Vessel, err error) {
	kind := string(ais.KindOf(err))
	p.stats.IncrementPollFailure(kind)
	p.log.Warn("AIS poll failed",
		"vessel_id", vessel.ID,
		"mmsi", vessel.MMSI,
		"kind", kind,
		"error", err)

	if p.cache == nil {
		return
	}
	failure := &types.PollFailure{
		VesselID: vessel.ID,
		Kind:     kind,
		Message:  err.Error(),
		At:       p.now(),
	}
	if cerr := p.cache.SetPollFailure(ctx, failure); cerr != nil {
		p.log.Warn("Failed to cache poll failure", "vessel_id", vessel.ID, "error", cerr)
	}
}
