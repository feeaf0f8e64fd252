package shaper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/shaper"
)

func TestShapeEmailEventsClassification(t *testing.T) {
	tests := []struct {
		name    string
		record  map[string]any
		state   map[string]any
		want    string
		wantLen int
	}{
		{
			name:    "received",
			record:  map[string]any{"id": "m1", "from": "Ada <ada@example.com>", "thread_id": "t1"},
			state:   map[string]any{},
			want:    "email_received",
			wantLen: 1,
		},
		{
			name:    "reply via in_reply_to",
			record:  map[string]any{"id": "m2", "from": "ada@example.com", "in_reply_to": "m1", "thread_id": "t1"},
			state:   map[string]any{},
			want:    "email_reply_received",
			wantLen: 1,
		},
		{
			name:    "reply via seen thread",
			record:  map[string]any{"id": "m3", "from": "ada@example.com", "thread_id": "t1"},
			state:   map[string]any{"t1": map[string]any{"last_message_id": "m1", "message_count": 1.0}},
			want:    "email_reply_received",
			wantLen: 1,
		},
		{
			name:    "sent via SENT label",
			record:  map[string]any{"id": "m4", "from": "me@example.com", "labels": []any{"SENT"}},
			state:   map[string]any{},
			want:    "email_sent",
			wantLen: 1,
		},
		{
			name:    "automated sender dropped",
			record:  map[string]any{"id": "m5", "from": "noreply@example.com"},
			state:   map[string]any{},
			wantLen: 0,
		},
		{
			name:    "missing id dropped",
			record:  map[string]any{"from": "ada@example.com"},
			state:   map[string]any{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := shaper.ShapeEmailEvents([]map[string]any{tt.record}, "u1", tt.state)
			require.Len(t, events, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.want, events[0].Event)
				assert.Equal(t, "gmail", events[0].Source)
			}
		})
	}
}

func TestShapeEmailEventsUpdatesThreadState(t *testing.T) {
	state := map[string]any{}
	shaper.ShapeEmailEvents([]map[string]any{{"id": "m1", "from": "a@example.com", "thread_id": "t1"}}, "u1", state)

	ts, ok := state["t1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m1", ts["last_message_id"])
	assert.Equal(t, 1.0, ts["message_count"])
}
