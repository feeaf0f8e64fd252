// Package toolexecutor holds Cortex's ToolExecutor contract (spec.md
// §6.4): execute(tool, args, user_id) -> any, where tool is a
// "provider.action" key drawn from the static tool registry. Unknown
// keys fail with "Unknown tool: {tool}".
package toolexecutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexrun/cortex/pkg/config"
)

// Client executes a single tool call on behalf of a run, matching the
// ToolExecutor interface pkg/runtime depends on.
type Client interface {
	Execute(ctx context.Context, tool string, args map[string]any, userID string) (any, error)
}

// StubClient returns canned responses for every known tool, validating
// the tool key against the registry exactly as a real backend must
// (spec.md §6.4). Grounded on the teacher's StubToolExecutor — a
// placeholder used until a real MCP/tool-gateway client replaces it.
type StubClient struct {
	tools *config.ToolRegistry
}

// NewStubClient creates a StubClient validating against tools.
func NewStubClient(tools *config.ToolRegistry) *StubClient {
	return &StubClient{tools: tools}
}

// Execute implements Client.
func (s *StubClient) Execute(_ context.Context, tool string, args map[string]any, userID string) (any, error) {
	provider, action, ok := splitToolKey(tool)
	if !ok || !s.tools.Has(provider, action) {
		return nil, fmt.Errorf("Unknown tool: %s", tool)
	}

	return map[string]any{
		"tool":    tool,
		"user_id": userID,
		"args":    args,
		"result":  fmt.Sprintf("[stub] %s called with %d arg(s)", tool, len(args)),
	}, nil
}

func splitToolKey(tool string) (provider, action string, ok bool) {
	idx := strings.Index(tool, ".")
	if idx <= 0 || idx == len(tool)-1 {
		return "", "", false
	}
	return tool[:idx], tool[idx+1:], true
}
