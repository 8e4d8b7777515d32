package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/seatime-logger/internal/ais"
	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/movement"
	"github.com/saviobatista/seatime-logger/internal/seatime"
	"github.com/saviobatista/seatime-logger/internal/stats"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// DefaultTickInterval is the scheduler's polling cadence
const DefaultTickInterval = 60 * time.Second

// TaskResult describes what happened to one due task in a tick
type TaskResult struct {
	TaskID        string               `json:"task_id"`
	VesselID      string               `json:"vessel_id"`
	Check         *types.PositionCheck `json:"check,omitempty"`
	UnderwayHours float64              `json:"underway_hours"`
	Outcome       seatime.Outcome      `json:"outcome,omitempty"`
	FailureKind   ais.FailureKind      `json:"failure_kind,omitempty"`
	Rescheduled   bool                 `json:"rescheduled"`
	Err           error                `json:"-"`
}

// TickReport summarizes one tick
type TickReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Skipped   bool          `json:"skipped"`
	Due       int           `json:"due"`
	Results   []TaskResult  `json:"results"`
}

// Deps are the collaborators a Runner needs
type Deps struct {
	Tasks      TaskSource
	Vessels    VesselSource
	Checks     CheckStore
	Poller     *Poller
	Reconciler *seatime.Reconciler
	Publisher  EventPublisher
	Stats      *stats.Stats
}

// Runner executes due tracking tasks on a fixed tick
type Runner struct {
	deps     Deps
	interval time.Duration
	log      logger.Logger
	now      func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner ticking every interval
func NewRunner(deps Deps, interval time.Duration, log logger.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{
		deps:     deps,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run ticks immediately and then every interval until ctx is done. A tick
// that fires while the previous one is still running is skipped.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("Scheduler started", "interval", r.interval)

	r.spawnTick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.log.Info("Scheduler stopped")
			return
		case <-ticker.C:
			r.spawnTick(ctx)
		}
	}
}

func (r *Runner) spawnTick(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		report, err := r.Tick(ctx)
		if report.Skipped {
			return
		}
		if err != nil {
			r.log.Error("Tick completed with errors",
				"due", report.Due,
				"duration", report.Duration,
				"error", err)
			return
		}
		if report.Due > 0 {
			r.log.Info("Tick completed", "due", report.Due, "duration", report.Duration)
		}
	}()
}

// Tick processes every due task once, sequentially. One task's failure does
// not stop the others; all failures are joined into the returned error.
func (r *Runner) Tick(ctx context.Context) (TickReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.deps.Stats.IncrementSkippedTicks()
		r.log.Debug("Previous tick still running, skipping")
		return TickReport{Skipped: true}, nil
	}
	defer r.running.Store(false)

	report := TickReport{StartedAt: r.now()}
	tasks, err := r.deps.Tasks.DueTasks(ctx, report.StartedAt)
	if err != nil {
		return report, fmt.Errorf("failed to load due tasks: %w", err)
	}
	r.deps.Stats.IncrementTicks()
	report.Due = len(tasks)

	var errs []error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res := r.processTask(ctx, task)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			r.deps.Stats.IncrementTasksFailed()
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, res.Err))
			continue
		}
		r.deps.Stats.IncrementTasksProcessed()
	}

	report.Duration = r.now().Sub(report.StartedAt)
	r.deps.Stats.ObserveTick(report.Duration, report.Due)
	return report, errors.Join(errs...)
}

// processTask runs poll, store, analyze, reconcile and reschedule for one
// task. The task is only rescheduled when every step succeeds, so a failed
// task stays due and is retried on the next tick.
func (r *Runner) processTask(ctx context.Context, task *types.TrackingTask) (res TaskResult) {
	res = TaskResult{TaskID: task.ID, VesselID: task.VesselID}
	log := r.log.With("task_id", task.ID, "vessel_id", task.VesselID)

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
		if res.Err != nil {
			log.Error("Task failed", "error", res.Err)
		}
	}()

	vessel, err := r.deps.Vessels.GetVessel(ctx, task.VesselID)
	if err != nil {
		res.Err = err
		return res
	}

	check, err := r.deps.Poller.Poll(ctx, vessel, types.CheckSourceScheduled)
	if err != nil {
		res.FailureKind = ais.KindOf(err)
		res.Err = err
		return res
	}
	res.Check = check

	pollTime := check.CheckTime
	history, err := r.deps.Checks.GetPositionChecksSince(ctx, vessel.ID, pollTime.Add(-movement.Lookback))
	if err != nil {
		res.Err = fmt.Errorf("failed to load check history: %w", err)
		return res
	}

	analysis := movement.Analyze(history, pollTime)
	res.UnderwayHours = analysis.TotalHours

	decision, err := r.deps.Reconciler.Reconcile(ctx, vessel, analysis)
	if err != nil {
		res.Err = err
		return res
	}
	res.Outcome = decision.Outcome

	if decision.Outcome == seatime.OutcomeCreated {
		r.deps.Stats.IncrementEntriesCreated(stats.PolicyScheduled)
		if r.deps.Publisher != nil {
			if err := r.deps.Publisher.PublishSeaTimeEntry(decision.Entry); err != nil {
				log.Warn("Failed to publish sea-time entry", "error", err)
			}
		}
	}

	if err := r.deps.Tasks.MarkRun(ctx, task.ID, pollTime, pollTime.Add(task.Interval())); err != nil {
		res.Err = fmt.Errorf("failed to reschedule: %w", err)
		return res
	}
	res.Rescheduled = true

	log.Debug("Task processed",
		"underway_hours", analysis.TotalHours,
		"windows", len(analysis.Windows),
		"outcome", decision.Outcome)
	return res
}
