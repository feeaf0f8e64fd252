package matcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/matcher"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
	"github.com/cortexrun/cortex/pkg/storetest"
)

type recordingRuntime struct {
	executed []*models.Run
}

func (r *recordingRuntime) Execute(_ context.Context, run *models.Run) {
	r.executed = append(r.executed, run)
}

func newTestMatcher(t *testing.T) (*matcher.Matcher, *storetest.Relational, *recordingRuntime) {
	t.Helper()
	rel := storetest.NewRelational()
	s := store.New(rel, storetest.NewEphemeral())
	rt := &recordingRuntime{}
	return matcher.New(s, rt), rel, rt
}

func mustSaveUnit(t *testing.T, rel *storetest.Relational, u *models.Unit) {
	t.Helper()
	require.NoError(t, rel.SaveUnit(context.Background(), u))
}

func TestMatchEmptyConditionsAlwaysFires(t *testing.T) {
	m, rel, rt := newTestMatcher(t)
	mustSaveUnit(t, rel, &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive,
		When: models.Trigger{Type: config.TriggerTypeEvent, Source: "gmail", Event: "email.received"},
	})

	runs, err := m.Match(context.Background(), &models.Event{
		ID: "evt_1", UserID: "u1", Source: "gmail", Event: "email.received",
		Payload: map[string]any{"from": "vip@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "unit_1", runs[0].UnitID)
	assert.Len(t, rt.executed, 1)
}

func TestMatchConditionMustPass(t *testing.T) {
	m, rel, rt := newTestMatcher(t)
	mustSaveUnit(t, rel, &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive,
		When: models.Trigger{Type: config.TriggerTypeEvent, Source: "gmail", Event: "email.received"},
		If:   []models.Condition{{Field: "from", Op: config.OpContains, Value: "vip"}},
	})

	runs, err := m.Match(context.Background(), &models.Event{
		ID: "evt_1", UserID: "u1", Source: "gmail", Event: "email.received",
		Payload: map[string]any{"from": "random@example.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, rt.executed)
}

func TestMatchAndSemanticsAcrossConditions(t *testing.T) {
	m, rel, _ := newTestMatcher(t)
	mustSaveUnit(t, rel, &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive,
		When: models.Trigger{Type: config.TriggerTypeEvent, Source: "salesforce", Event: "opportunity.stage_changed"},
		If: []models.Condition{
			{Field: "amount", Op: config.OpGte, Value: 1000.0},
			{Field: "stage", Op: config.OpEq, Value: "closed_won"},
		},
	})

	runs, err := m.Match(context.Background(), &models.Event{
		ID: "evt_1", UserID: "u1", Source: "salesforce", Event: "opportunity.stage_changed",
		Payload: map[string]any{"amount": 500.0, "stage": "closed_won"},
	})
	require.NoError(t, err)
	assert.Empty(t, runs, "amount condition fails so AND semantics must reject the match")
}

func TestMatchIgnoresInactiveUnits(t *testing.T) {
	m, rel, _ := newTestMatcher(t)
	mustSaveUnit(t, rel, &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusPaused,
		When: models.Trigger{Type: config.TriggerTypeEvent, Source: "gmail", Event: "email.received"},
	})

	runs, err := m.Match(context.Background(), &models.Event{ID: "evt_1", UserID: "u1", Source: "gmail", Event: "email.received", Payload: map[string]any{}})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestMatchDotPathMissingFieldIsUndefined(t *testing.T) {
	m, rel, _ := newTestMatcher(t)
	mustSaveUnit(t, rel, &models.Unit{
		ID: "unit_1", Owner: "u1", Status: config.UnitStatusActive,
		When: models.Trigger{Type: config.TriggerTypeEvent, Source: "gmail", Event: "email.received"},
		If:   []models.Condition{{Field: "meta.priority", Op: config.OpExists}},
	})

	runs, err := m.Match(context.Background(), &models.Event{
		ID: "evt_1", UserID: "u1", Source: "gmail", Event: "email.received",
		Payload: map[string]any{"from": "a@example.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, runs, "exists must fail for a missing dotted path")
}
