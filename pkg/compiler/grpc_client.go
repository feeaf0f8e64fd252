package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cortexrun/cortex/pkg/models"
)

// compileMethod is the fully-qualified gRPC method the compiler service
// exposes. GRPCClient invokes it directly via ClientConn.Invoke rather
// than through generated stubs, since the compiler service's wire
// contract is a generic structpb.Struct in both directions.
const compileMethod = "/cortex.compiler.v1.CompilerService/Compile"

// GRPCClient implements Client by calling the external compiler service
// over gRPC, mirroring the teacher's GRPCLLMClient (insecure transport —
// the compiler service is expected to run as a sidecar or on localhost).
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient dials addr and returns a GRPCClient.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler client for %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Compile implements Client.
func (c *GRPCClient) Compile(ctx context.Context, req CompileRequest) (*models.Unit, error) {
	reqStruct, err := structpb.NewStruct(map[string]any{
		"owner":  req.Owner,
		"name":   req.Name,
		"when":   req.RawWhen,
		"if":     req.RawIf,
		"then":   req.RawThen,
		"prompt": req.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode compile request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, compileMethod, reqStruct, resp); err != nil {
		return nil, fmt.Errorf("compiler rpc failed: %w", err)
	}

	return unitFromStruct(resp)
}

func unitFromStruct(s *structpb.Struct) (*models.Unit, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("marshal compiler response: %w", err)
	}
	var unit models.Unit
	if err := json.Unmarshal(raw, &unit); err != nil {
		return nil, fmt.Errorf("decode compiler response: %w", err)
	}
	return &unit, nil
}
