package toolexecutor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/version"
)

// MCPClient executes tool actions against real MCP servers, one server
// per provider, keeping a single lazily-created session per provider for
// the lifetime of the client. Grounded on the teacher's pkg/mcp.Client +
// pkg/mcp.ToolExecutor, simplified for Cortex's single-session-per-process
// needs: no tool-result caching, no retry/backoff, no data masking. A
// failed call tears its session down so the next call reconnects.
type MCPClient struct {
	servers *config.MCPServerRegistry

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession // provider -> session
}

// NewMCPClient creates a client backed by servers.
func NewMCPClient(servers *config.MCPServerRegistry) *MCPClient {
	return &MCPClient{
		servers:  servers,
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// Execute implements Client by resolving tool into a provider.action pair,
// connecting (or reusing a connection) to that provider's MCP server, and
// calling the action as an MCP tool named action.
func (m *MCPClient) Execute(ctx context.Context, tool string, args map[string]any, userID string) (any, error) {
	provider, action, ok := splitToolKey(tool)
	if !ok {
		return nil, fmt.Errorf("Unknown tool: %s", tool)
	}

	session, err := m.session(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q unavailable: %w", provider, err)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      action,
		Arguments: args,
	})
	if err != nil {
		m.dropSession(provider)
		return nil, fmt.Errorf("mcp call %s failed: %w", tool, err)
	}

	content := extractText(result)
	if result.IsError {
		return nil, fmt.Errorf("tool %s returned an error: %s", tool, content)
	}

	return map[string]any{
		"tool":    tool,
		"user_id": userID,
		"result":  content,
	}, nil
}

func (m *MCPClient) session(ctx context.Context, provider string) (*mcpsdk.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[provider]; ok {
		return session, nil
	}

	spec, err := m.servers.Get(provider)
	if err != nil {
		return nil, err
	}

	transport, err := createTransport(spec)
	if err != nil {
		return nil, err
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.Commit(),
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %q: %w", provider, err)
	}

	m.sessions[provider] = session
	return session, nil
}

func (m *MCPClient) dropSession(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, provider)
}

// Close closes every open session.
func (m *MCPClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for provider, session := range m.sessions {
		_ = session.Close()
		delete(m.sessions, provider)
	}
}

func createTransport(spec *config.MCPServerSpec) (mcpsdk.Transport, error) {
	switch spec.Type {
	case config.TransportTypeStdio:
		if spec.Command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return &mcpsdk.CommandTransport{Command: exec.Command(spec.Command, spec.Args...)}, nil
	case config.TransportTypeHTTP:
		if spec.URL == "" {
			return nil, fmt.Errorf("http transport requires a url")
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: spec.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", spec.Type)
	}
}

// extractText joins the text content blocks of an MCP tool result,
// matching the teacher's extractTextContent. Non-text content is dropped;
// Cortex's actions only consume plain text tool results.
func extractText(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
