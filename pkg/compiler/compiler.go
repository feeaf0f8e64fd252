// Package compiler holds Cortex's Compiler contract: an outside service
// maps a unit's natural-language when/if/then fields to the typed
// {when, if, then} structure of spec.md §3. The core requires only the
// interface below; Compiler is never in a run's hot path (spec.md §4.4).
package compiler

import (
	"context"

	"github.com/cortexrun/cortex/pkg/models"
)

// CompileRequest carries either a single free-text Prompt (to be split
// into raw when/if/then fragments by a lightweight in-process matcher
// before compilation) or already-separated raw fields, plus the
// requesting user's id (spec.md §6.3).
type CompileRequest struct {
	Owner string

	// Prompt is set when the caller submitted POST /api/cortex/units with
	// {prompt}. When set, RawWhen/RawIf/RawThen are ignored by Client
	// implementations in favor of splitting Prompt themselves.
	Prompt string

	// RawWhen/RawIf/RawThen are set when the caller submitted the
	// structured {when, then, if?} request shape directly.
	RawWhen string
	RawIf   string
	RawThen string
	Name    string
}

// Client compiles a CompileRequest into a complete Unit: a fresh id, a
// compiled trigger, compiled conditions (possibly empty), and an ordered
// action list whose types are drawn from spec.md §3's wait/tool/llm set.
type Client interface {
	Compile(ctx context.Context, req CompileRequest) (*models.Unit, error)
}
