package models

import "github.com/cortexrun/cortex/pkg/config"

// Action is one step in a Unit's `then` list. It is a tagged variant:
// exactly one of Wait, Tool, or LLM is expected to be populated, selected
// by Type.
type Action struct {
	Type config.ActionType `json:"type"`

	// Wait: pause the run for Duration (spec.md §3: integer + m|h|d|w).
	Duration string `json:"duration,omitempty"`

	// Tool: invoke ToolExecutor.
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	StoreAs string         `json:"store_as,omitempty"`

	// LLM: invoke the LLM generate() contract.
	Prompt string `json:"prompt,omitempty"`
	Input  any    `json:"input,omitempty"`
	// StoreAs is shared with the Tool variant above; both Tool and LLM
	// actions may optionally capture their result into run context.
}
