// Package llm holds Cortex's LLM generate contract (spec.md §6.5): a
// single generate(promptKey, input) -> string call, used by Runtime's
// llm actions. promptKey is either a known library entry (summarize,
// draft_reply, extract_action_items, analyze_sentiment) or treated as a
// raw instruction.
package llm

import "context"

// PromptLibrary names the fixed set of known prompt keys; any other key
// is treated as a raw instruction string (spec.md §6.5).
var PromptLibrary = map[string]bool{
	"summarize":            true,
	"draft_reply":          true,
	"extract_action_items": true,
	"analyze_sentiment":    true,
}

// Client generates text from a prompt key and arbitrary input. Errors
// aside, an empty string is an acceptable result (spec.md §6.5).
type Client interface {
	Generate(ctx context.Context, promptKey string, input any) (string, error)
}
