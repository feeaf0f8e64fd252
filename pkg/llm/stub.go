package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// StubClient returns a canned response for every prompt key, used until a
// real LLM gateway is configured. Grounded on the teacher's
// StubToolExecutor — same "replaced once the real backend exists" role.
type StubClient struct{}

// NewStubClient creates a StubClient.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Generate implements Client.
func (s *StubClient) Generate(_ context.Context, promptKey string, input any) (string, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode generate input: %w", err)
	}

	known := "raw instruction"
	if PromptLibrary[promptKey] {
		known = "known prompt"
	}

	return fmt.Sprintf("[stub] %s (%s) called with input: %s", promptKey, known, inputJSON), nil
}
