package compiler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// LightweightCompiler is the in-process fallback Client used whenever the
// real NLU-backed compiler service is unavailable. It does not attempt
// natural-language understanding: a {prompt} request is split on the
// literal words "when"/"if"/"then" into raw fragments (spec.md §6.3),
// and every compiled unit gets a manual trigger, no conditions, and a
// single llm action carrying the raw "then" text as its instruction —
// structurally valid, but not a substitute for the real compiler.
type LightweightCompiler struct{}

// NewLightweightCompiler creates a LightweightCompiler.
func NewLightweightCompiler() *LightweightCompiler {
	return &LightweightCompiler{}
}

// Compile implements Client.
func (c *LightweightCompiler) Compile(_ context.Context, req CompileRequest) (*models.Unit, error) {
	raw, err := rawFromRequest(req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	unit := &models.Unit{
		ID:    store.NewID("unit"),
		Owner: req.Owner,
		Name:  nameOrDefault(req.Name, raw),
		Raw:   raw,
		When:  models.Trigger{Type: config.TriggerTypeManual},
		If:    nil,
		Then: []models.Action{
			{Type: config.ActionTypeLLM, Prompt: "raw_instruction", Input: raw.Then},
		},
		Status:    config.UnitStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return unit, nil
}

func nameOrDefault(name string, raw models.RawUnit) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("when %s, then %s", strings.TrimSpace(raw.When), strings.TrimSpace(raw.Then))
}

// rawFromRequest builds a RawUnit either directly from a structured
// request or by splitting a free-text prompt, requiring the words "when"
// and "then" to both be present (spec.md §6.3).
func rawFromRequest(req CompileRequest) (models.RawUnit, error) {
	if req.Prompt == "" {
		return models.RawUnit{When: req.RawWhen, If: req.RawIf, Then: req.RawThen}, nil
	}
	return splitPrompt(req.Prompt)
}

func splitPrompt(prompt string) (models.RawUnit, error) {
	lower := strings.ToLower(prompt)
	whenIdx := strings.Index(lower, "when")
	thenIdx := strings.LastIndex(lower, "then")
	if whenIdx < 0 || thenIdx < 0 || thenIdx <= whenIdx {
		return models.RawUnit{}, fmt.Errorf("prompt must contain both \"when\" and \"then\"")
	}

	whenAndIf := strings.TrimSpace(prompt[whenIdx+len("when") : thenIdx])
	thenText := strings.TrimSpace(prompt[thenIdx+len("then"):])

	whenText, ifText := whenAndIf, ""
	lowerWhenAndIf := strings.ToLower(whenAndIf)
	if ifIdx := strings.Index(lowerWhenAndIf, "if"); ifIdx >= 0 {
		whenText = strings.TrimSpace(whenAndIf[:ifIdx])
		ifText = strings.TrimSpace(whenAndIf[ifIdx+len("if"):])
	}

	return models.RawUnit{When: whenText, If: ifText, Then: thenText}, nil
}
