// Package scheduler wakes waiting runs whose resume_at has passed,
// advancing them past the wait action that suspended them and handing
// them back to the Runtime (spec.md §4.8).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// Runtime is the subset of pkg/runtime.Runtime the Scheduler depends on.
type Runtime interface {
	Execute(ctx context.Context, run *models.Run)
}

// UnitLoader is the subset of store access the Scheduler needs to verify
// the step it's about to skip past really is the wait action that
// suspended the run (spec.md §9 Open Question: the scheduler must not
// blindly advance step).
type UnitLoader interface {
	GetUnit(ctx context.Context, id string) (*models.Unit, error)
}

// Scheduler is a non-overlapping ticker loop over the wait queue.
type Scheduler struct {
	store    *store.Store
	units    UnitLoader
	runtime  Runtime
	interval time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	lastTick atomic.Int64 // unix nano of last completed tick
}

// New creates a Scheduler that ticks every interval.
func New(s *store.Store, units UnitLoader, runtime Runtime, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    s,
		units:    units,
		runtime:  runtime,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the ticker loop until Stop is called. It blocks; callers
// should invoke it in its own goroutine.
func (sch *Scheduler) Start(ctx context.Context) {
	defer close(sch.doneCh)

	sch.lastTick.Store(time.Now().UnixNano())

	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sch.stopCh:
			return
		case <-ticker.C:
			sch.Tick(ctx)
			sch.lastTick.Store(time.Now().UnixNano())
		}
	}
}

// Health reports whether the scheduler has ticked recently enough to
// trust it isn't stuck, for the health endpoint.
func (sch *Scheduler) Health() (healthy bool, detail string) {
	last := time.Unix(0, sch.lastTick.Load())
	since := time.Since(last)
	if since > 2*sch.interval {
		return false, fmt.Sprintf("no tick in %s (interval %s)", since.Round(time.Second), sch.interval)
	}
	return true, ""
}

// Stop cancels the ticker and waits for any in-flight tick to drain.
func (sch *Scheduler) Stop() {
	sch.stopOnce.Do(func() { close(sch.stopCh) })
	<-sch.doneCh
}

// Tick wakes every run due by now. GetWaitingRuns already removes each
// entry from the wait queue as part of dequeuing, so a run cannot be
// woken twice in the same tick even though per-run resumption proceeds
// independently (spec.md §4.8). Exported so tests can drive a single tick
// deterministically instead of racing the ticker.
func (sch *Scheduler) Tick(ctx context.Context) {
	due, err := sch.store.GetWaitingRuns(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("scheduler failed to load waiting runs", "error", err)
		return
	}

	for _, run := range due {
		sch.resume(ctx, run)
	}
}

// resume advances run past the wait action that suspended it, then hands
// it back to Runtime. It asserts the step it's skipping really is a wait
// action before advancing, per the Open Question decision recorded in
// DESIGN.md: a mismatch here means the unit was edited out from under a
// waiting run, and fails loudly rather than silently skipping the wrong
// step.
func (sch *Scheduler) resume(ctx context.Context, run *models.Run) {
	unit, err := sch.units.GetUnit(ctx, run.UnitID)
	if err != nil {
		slog.Error("scheduler could not load unit for waiting run", "run_id", run.ID, "unit_id", run.UnitID, "error", err)
		return
	}

	if run.Step >= len(unit.Then) || unit.Then[run.Step].Type != config.ActionTypeWait {
		slog.Error("waiting run's current step is not a wait action, unit may have changed under it",
			"run_id", run.ID, "unit_id", run.UnitID, "step", run.Step)
		sch.failRun(ctx, run, "resumed run's step no longer points at a wait action")
		return
	}

	run.Step++
	run.Status = config.RunStatusRunning
	run.ResumeAt = nil
	if err := sch.store.SaveRun(ctx, run); err != nil {
		slog.Error("scheduler failed to persist run resume", "run_id", run.ID, "error", err)
		return
	}

	sch.runtime.Execute(ctx, run)
}

func (sch *Scheduler) failRun(ctx context.Context, run *models.Run, reason string) {
	now := time.Now().UTC()
	run.Status = config.RunStatusFailed
	run.Error = reason
	run.CompletedAt = &now
	run.ResumeAt = nil
	if err := sch.store.SaveRun(ctx, run); err != nil {
		slog.Error("scheduler failed to persist run failure", "run_id", run.ID, "error", err)
	}
}
