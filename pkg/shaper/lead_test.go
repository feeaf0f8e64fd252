package shaper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/shaper"
)

func TestShapeLeadEventsCreated(t *testing.T) {
	state := map[string]any{}
	events := shaper.ShapeLeadEvents([]map[string]any{{"Id": "l1", "Status": "Open"}}, "u1", state)

	require.Len(t, events, 1)
	assert.Equal(t, "lead_created", events[0].Event)
}

func TestShapeLeadEventsConverted(t *testing.T) {
	state := map[string]any{"l1": map[string]any{"IsConverted": false, "Status": "Open"}}
	events := shaper.ShapeLeadEvents([]map[string]any{{"Id": "l1", "Status": "Closed", "IsConverted": true}}, "u1", state)

	require.Len(t, events, 1)
	assert.Equal(t, "lead_converted", events[0].Event)
}

func TestShapeLeadEventsStageChanged(t *testing.T) {
	state := map[string]any{"l1": map[string]any{"IsConverted": false, "Status": "Open"}}
	events := shaper.ShapeLeadEvents([]map[string]any{{"Id": "l1", "Status": "Working"}}, "u1", state)

	require.Len(t, events, 1)
	assert.Equal(t, "lead_stage_changed", events[0].Event)
}

func TestShapeLeadEventsNoChangeEmitsNothing(t *testing.T) {
	state := map[string]any{"l1": map[string]any{"IsConverted": false, "Status": "Open"}}
	events := shaper.ShapeLeadEvents([]map[string]any{{"Id": "l1", "Status": "Open"}}, "u1", state)

	assert.Empty(t, events)
}

func TestShapeLeadEventsMissingIDSkipped(t *testing.T) {
	events := shaper.ShapeLeadEvents([]map[string]any{{"Status": "Open"}}, "u1", map[string]any{})
	assert.Empty(t, events)
}
