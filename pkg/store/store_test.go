package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
	"github.com/cortexrun/cortex/pkg/storetest"
)

func newTestStore() (*store.Store, *storetest.Relational, *storetest.Ephemeral) {
	rel := storetest.NewRelational()
	eph := storetest.NewEphemeral()
	return store.New(rel, eph), rel, eph
}

func TestWriteEventDedupe(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	e := &models.Event{
		ID:     "evt_1",
		UserID: "user_1",
		Source: "gmail",
		Event:  "email.received",
		Meta:   models.EventMeta{DedupeKey: "gmail:m1"},
	}

	accepted, err := s.WriteEvent(ctx, e)
	require.NoError(t, err)
	assert.True(t, accepted)

	e2 := &models.Event{
		ID:     "evt_2",
		UserID: "user_1",
		Source: "gmail",
		Event:  "email.received",
		Meta:   models.EventMeta{DedupeKey: "gmail:m1"},
	}
	accepted, err = s.WriteEvent(ctx, e2)
	require.NoError(t, err)
	assert.False(t, accepted, "second write with the same dedupe key must be rejected")
}

func TestWriteEventNoDedupeKeyAlwaysAccepted(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		accepted, err := s.WriteEvent(ctx, &models.Event{ID: store.NewID("evt"), UserID: "u"})
		require.NoError(t, err)
		assert.True(t, accepted)
	}
}

func TestSaveRunEnrollsWaitQueue(t *testing.T) {
	s, _, eph := newTestStore()
	ctx := context.Background()

	resumeAt := time.Now().Add(time.Hour)
	run := &models.Run{ID: "run_1", UnitID: "unit_1", EventID: "evt_1", Status: config.RunStatusWaiting, ResumeAt: &resumeAt}

	require.NoError(t, s.SaveRun(ctx, run))

	due, err := eph.DequeueDue(ctx, resumeAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"run_1"}, due)
}

func TestSaveRunRemovesWaitEntryWhenNotWaiting(t *testing.T) {
	s, _, eph := newTestStore()
	ctx := context.Background()

	resumeAt := time.Now().Add(time.Hour)
	run := &models.Run{ID: "run_2", UnitID: "unit_1", EventID: "evt_2", Status: config.RunStatusWaiting, ResumeAt: &resumeAt}
	require.NoError(t, s.SaveRun(ctx, run))

	run.Status = config.RunStatusSuccess
	run.ResumeAt = nil
	require.NoError(t, s.SaveRun(ctx, run))

	due, err := eph.DequeueDue(ctx, resumeAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due, "a run that left waiting status must be removed from the wait queue")
}

// failingEnqueueEphemeral wraps an Ephemeral fake and fails every
// EnqueueWait call, to exercise SaveRun's revert-to-running path.
type failingEnqueueEphemeral struct {
	*storetest.Ephemeral
}

func (f *failingEnqueueEphemeral) EnqueueWait(ctx context.Context, runID string, resumeAt time.Time) error {
	return errors.New("simulated ephemeral store outage")
}

func TestSaveRunRevertsToRunningWhenWaitQueueWriteFails(t *testing.T) {
	rel := storetest.NewRelational()
	eph := &failingEnqueueEphemeral{Ephemeral: storetest.NewEphemeral()}
	s := store.New(rel, eph)
	ctx := context.Background()

	resumeAt := time.Now().Add(time.Hour)
	run := &models.Run{ID: "run_3", UnitID: "unit_1", EventID: "evt_3", Status: config.RunStatusWaiting, ResumeAt: &resumeAt}

	err := s.SaveRun(ctx, run)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrWaitQueueWrite)

	persisted, getErr := rel.GetRun(ctx, "run_3")
	require.NoError(t, getErr)
	assert.Equal(t, config.RunStatusRunning, persisted.Status, "run must be reverted to running, not left waiting with no timer")
}

func TestGetRunForRerunRequiresPreservedPayload(t *testing.T) {
	s, rel, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, rel.SaveRun(ctx, &models.Run{ID: "run_4", UnitID: "unit_1", EventID: "evt_4", Status: config.RunStatusSuccess}))

	_, _, err := s.GetRunForRerun(ctx, "run_4")
	assert.ErrorIs(t, err, store.ErrRerunPayloadMissing)
}

func TestGetRunForRerunReturnsPreservedPayload(t *testing.T) {
	s, rel, _ := newTestStore()
	ctx := context.Background()

	payload := map[string]any{"from": "a@example.com"}
	require.NoError(t, rel.SaveRun(ctx, &models.Run{
		ID: "run_5", UnitID: "unit_1", EventID: "evt_5", Status: config.RunStatusFailed,
		OriginalEventPayload: payload,
	}))

	run, got, err := s.GetRunForRerun(ctx, "run_5")
	require.NoError(t, err)
	assert.Equal(t, "run_5", run.ID)
	assert.Equal(t, payload, got)
}

func TestGetWaitingRunsSkipsMissingRuns(t *testing.T) {
	s, _, eph := newTestStore()
	ctx := context.Background()

	require.NoError(t, eph.EnqueueWait(ctx, "ghost_run", time.Now().Add(-time.Minute)))

	runs, err := s.GetWaitingRuns(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "webhook:conn_1:message", store.WebhookDedupeKey("conn_1", "message"))
	assert.Equal(t, "poller:gmail:user_1", store.PollerStateKey("gmail", "user_1"))
	assert.Equal(t, "shaper:email:user_1", store.ShaperStateKey("email", "user_1"))
	assert.Equal(t, "connection-owner:conn_1", store.ConnectionOwnerKey("conn_1"))
}
