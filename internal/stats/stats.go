package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/metrics"
)

// Entry policies
const (
	PolicyScheduled = "scheduled"
	PolicyManual    = "manual"
)

// Persister stores statistics snapshots
type Persister interface {
	StoreSchedulerStats(ctx context.Context, snap Snapshot) error
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Time           time.Time         `json:"time"`
	TotalTicks     uint64            `json:"total_ticks"`
	SkippedTicks   uint64            `json:"skipped_ticks"`
	TasksProcessed uint64            `json:"tasks_processed"`
	TasksFailed    uint64            `json:"tasks_failed"`
	ChecksStored   uint64            `json:"checks_stored"`
	EntriesCreated uint64            `json:"entries_created"`
	ManualChecks   uint64            `json:"manual_checks"`
	PollFailures   map[string]uint64 `json:"poll_failures"`
	Uptime         time.Duration     `json:"uptime"`
}

// Stats tracks scheduler statistics
type Stats struct {
	TotalTicks     uint64
	SkippedTicks   uint64
	TasksProcessed uint64
	TasksFailed    uint64
	ChecksStored   uint64
	EntriesCreated uint64
	ManualChecks   uint64

	startedAt    time.Time
	pollFailures map[string]uint64
	persister    Persister
	metrics      *metrics.Metrics

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		startedAt:    time.Now(),
		pollFailures: make(map[string]uint64),
	}
}

// SetPersister sets the store used by Persist
func (s *Stats) SetPersister(p Persister) {
	s.mu.Lock()
	s.persister = p
	s.mu.Unlock()
}

// SetMetrics mirrors counter updates into prometheus collectors
func (s *Stats) SetMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

func (s *Stats) m() *metrics.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// IncrementTicks counts a tick that ran
func (s *Stats) IncrementTicks() {
	atomic.AddUint64(&s.TotalTicks, 1)
	if m := s.m(); m != nil {
		m.TicksTotal.WithLabelValues("run").Inc()
	}
}

// IncrementSkippedTicks counts a tick skipped because another was in progress
func (s *Stats) IncrementSkippedTicks() {
	atomic.AddUint64(&s.SkippedTicks, 1)
	if m := s.m(); m != nil {
		m.TicksTotal.WithLabelValues("skipped").Inc()
	}
}

// IncrementTasksProcessed counts a task that completed its cycle
func (s *Stats) IncrementTasksProcessed() {
	atomic.AddUint64(&s.TasksProcessed, 1)
	if m := s.m(); m != nil {
		m.TasksTotal.WithLabelValues("succeeded").Inc()
	}
}

// IncrementTasksFailed counts a task whose cycle failed
func (s *Stats) IncrementTasksFailed() {
	atomic.AddUint64(&s.TasksFailed, 1)
	if m := s.m(); m != nil {
		m.TasksTotal.WithLabelValues("failed").Inc()
	}
}

// IncrementChecksStored counts a stored position check
func (s *Stats) IncrementChecksStored() {
	atomic.AddUint64(&s.ChecksStored, 1)
	if m := s.m(); m != nil {
		m.ChecksStored.Inc()
	}
}

// IncrementEntriesCreated counts a sea-time entry created by the given policy
func (s *Stats) IncrementEntriesCreated(policy string) {
	atomic.AddUint64(&s.EntriesCreated, 1)
	if m := s.m(); m != nil {
		m.EntriesCreated.WithLabelValues(policy).Inc()
	}
}

// IncrementManualChecks counts a manual check request
func (s *Stats) IncrementManualChecks() {
	atomic.AddUint64(&s.ManualChecks, 1)
}

// IncrementPollFailure counts a failed poll by failure kind
func (s *Stats) IncrementPollFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	s.mu.Lock()
	s.pollFailures[kind]++
	s.mu.Unlock()
}

// ObserveTick records the duration and due count of a completed tick
func (s *Stats) ObserveTick(duration time.Duration, due int) {
	if m := s.m(); m != nil {
		m.TickDuration.Observe(duration.Seconds())
		m.DueTasks.Set(float64(due))
	}
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	failures := make(map[string]uint64, len(s.pollFailures))
	for k, v := range s.pollFailures {
		failures[k] = v
	}
	startedAt := s.startedAt
	s.mu.RUnlock()

	return Snapshot{
		Time:           time.Now(),
		TotalTicks:     atomic.LoadUint64(&s.TotalTicks),
		SkippedTicks:   atomic.LoadUint64(&s.SkippedTicks),
		TasksProcessed: atomic.LoadUint64(&s.TasksProcessed),
		TasksFailed:    atomic.LoadUint64(&s.TasksFailed),
		ChecksStored:   atomic.LoadUint64(&s.ChecksStored),
		EntriesCreated: atomic.LoadUint64(&s.EntriesCreated),
		ManualChecks:   atomic.LoadUint64(&s.ManualChecks),
		PollFailures:   failures,
		Uptime:         time.Since(startedAt),
	}
}

// Persist stores the current statistics
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	p := s.persister
	s.mu.RUnlock()

	if p == nil {
		return errors.New("stats persister not set")
	}
	return p.StoreSchedulerStats(ctx, s.Snapshot())
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()

	kinds := make([]string, 0, len(snap.PollFailures))
	for k := range snap.PollFailures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	failures := make([]string, 0, len(kinds))
	for _, k := range kinds {
		failures = append(failures, fmt.Sprintf("%s=%d", k, snap.PollFailures[k]))
	}

	return fmt.Sprintf(
		"Ticks: %d (skipped %d)\n"+
			"Tasks Processed: %d\n"+
			"Tasks Failed: %d\n"+
			"Checks Stored: %d\n"+
			"Entries Created: %d\n"+
			"Manual Checks: %d\n"+
			"Poll Failures: %s\n"+
			"Uptime: %s",
		snap.TotalTicks, snap.SkippedTicks,
		snap.TasksProcessed,
		snap.TasksFailed,
		snap.ChecksStored,
		snap.EntriesCreated,
		snap.ManualChecks,
		strings.Join(failures, ", "),
		snap.Uptime.Truncate(time.Second),
	)
}

// StartPersistence periodically logs and persists statistics until ctx is done
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Persist(finalCtx); err != nil {
				log.Error("Failed to persist final statistics", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			snap := s.Snapshot()
			log.Info("Scheduler statistics",
				"ticks", snap.TotalTicks,
				"skipped_ticks", snap.SkippedTicks,
				"tasks_processed", snap.TasksProcessed,
				"tasks_failed", snap.TasksFailed,
				"checks_stored", snap.ChecksStored,
				"entries_created", snap.EntriesCreated,
				"poll_failures", snap.PollFailures)
			if err := s.Persist(ctx); err != nil {
				log.Error("Failed to persist statistics", "error", err)
			}
		}
	}
}
