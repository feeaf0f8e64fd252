package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/scheduler"
	"github.com/cortexrun/cortex/pkg/store"
	"github.com/cortexrun/cortex/pkg/storetest"
)

type recordingRuntime struct {
	executed []*models.Run
}

func (r *recordingRuntime) Execute(_ context.Context, run *models.Run) {
	r.executed = append(r.executed, run)
}

func TestTickResumesDueRunsPastWaitStep(t *testing.T) {
	rel := storetest.NewRelational()
	s := store.New(rel, storetest.NewEphemeral())
	ctx := context.Background()

	unit := &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive,
		Then: []models.Action{
			{Type: config.ActionTypeWait, Duration: "1h"},
			{Type: config.ActionTypeTool, Tool: "gmail.send_email"},
		},
	}
	require.NoError(t, rel.SaveUnit(ctx, unit))

	resumeAt := time.Now().Add(-time.Minute)
	run := &models.Run{ID: "run_1", UnitID: "unit_1", EventID: "evt_1", Status: config.RunStatusWaiting, Step: 0, ResumeAt: &resumeAt}
	require.NoError(t, s.SaveRun(ctx, run))

	rt := &recordingRuntime{}
	sched := scheduler.New(s, rel, rt, time.Hour)

	sched.Tick(ctx)

	require.Len(t, rt.executed, 1)
	assert.Equal(t, 1, rt.executed[0].Step, "resume must advance past the wait action")
	assert.Equal(t, config.RunStatusRunning, rt.executed[0].Status)
}

func TestTickFailsRunWhenStepIsNotWaitAction(t *testing.T) {
	rel := storetest.NewRelational()
	s := store.New(rel, storetest.NewEphemeral())
	ctx := context.Background()

	// Unit edited out from under the run: step 0 is now a tool action,
	// not the wait action the run was suspended on.
	unit := &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive,
		Then: []models.Action{{Type: config.ActionTypeTool, Tool: "gmail.send_email"}},
	}
	require.NoError(t, rel.SaveUnit(ctx, unit))

	resumeAt := time.Now().Add(-time.Minute)
	run := &models.Run{ID: "run_1", UnitID: "unit_1", EventID: "evt_1", Status: config.RunStatusWaiting, Step: 0, ResumeAt: &resumeAt}
	require.NoError(t, s.SaveRun(ctx, run))

	rt := &recordingRuntime{}
	sched := scheduler.New(s, rel, rt, time.Hour)
	sched.Tick(ctx)

	assert.Empty(t, rt.executed, "must not hand a mismatched run to Runtime")

	fetched, err := rel.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, config.RunStatusFailed, fetched.Status)
}

func TestTickIgnoresRunsNotYetDue(t *testing.T) {
	rel := storetest.NewRelational()
	s := store.New(rel, storetest.NewEphemeral())
	ctx := context.Background()

	unit := &models.Unit{ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive, Then: []models.Action{{Type: config.ActionTypeWait, Duration: "1h"}}}
	require.NoError(t, rel.SaveUnit(ctx, unit))

	resumeAt := time.Now().Add(time.Hour)
	run := &models.Run{ID: "run_1", UnitID: "unit_1", EventID: "evt_1", Status: config.RunStatusWaiting, ResumeAt: &resumeAt}
	require.NoError(t, s.SaveRun(ctx, run))

	rt := &recordingRuntime{}
	sched := scheduler.New(s, rel, rt, time.Hour)
	sched.Tick(ctx)

	assert.Empty(t, rt.executed)
}

func TestStartStopDrainsCleanly(t *testing.T) {
	rel := storetest.NewRelational()
	s := store.New(rel, storetest.NewEphemeral())
	rt := &recordingRuntime{}
	sched := scheduler.New(s, rel, rt, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	sched.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
