package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// generateMethod is the fully-qualified gRPC method the LLM gateway
// service exposes, invoked directly against structpb messages for the
// same reason pkg/compiler's GRPCClient does (no generated stub exists
// for this service in-repo).
const generateMethod = "/cortex.llm.v1.LLMService/Generate"

// GRPCClient implements Client by calling an external LLM gateway over
// gRPC, grounded on the teacher's agent.GRPCLLMClient.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient dials addr and returns a GRPCClient.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client for %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Generate implements Client.
func (c *GRPCClient) Generate(ctx context.Context, promptKey string, input any) (string, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode generate input: %w", err)
	}

	req, err := structpb.NewStruct(map[string]any{
		"prompt_key": promptKey,
		"known":      PromptLibrary[promptKey],
		"input":      json.RawMessage(inputJSON),
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, generateMethod, req, resp); err != nil {
		return "", fmt.Errorf("llm generate rpc failed: %w", err)
	}

	text, _ := resp.AsMap()["text"].(string)
	return text, nil
}
