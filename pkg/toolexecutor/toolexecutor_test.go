package toolexecutor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/toolexecutor"
)

func newTestRegistry() *config.ToolRegistry {
	return config.NewToolRegistry([]config.ToolSpec{
		{Provider: "gmail", Action: "send_email", Description: "send an email"},
		{Provider: "slack", Action: "post_message", Description: "post a slack message"},
	})
}

func TestStubClientExecutesKnownTool(t *testing.T) {
	c := toolexecutor.NewStubClient(newTestRegistry())

	result, err := c.Execute(context.Background(), "gmail.send_email", map[string]any{"to": "a@b.com"}, "user1")

	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gmail.send_email", m["tool"])
	assert.Equal(t, "user1", m["user_id"])
}

func TestStubClientRejectsUnknownTool(t *testing.T) {
	c := toolexecutor.NewStubClient(newTestRegistry())

	_, err := c.Execute(context.Background(), "gmail.delete_everything", nil, "user1")

	require.Error(t, err)
	assert.Equal(t, "Unknown tool: gmail.delete_everything", err.Error())
}

func TestStubClientRejectsMalformedToolKey(t *testing.T) {
	c := toolexecutor.NewStubClient(newTestRegistry())

	for _, tool := range []string{"noDotAtAll", ".send_email", "gmail.", ""} {
		_, err := c.Execute(context.Background(), tool, nil, "user1")
		assert.Errorf(t, err, "expected error for tool key %q", tool)
	}
}
