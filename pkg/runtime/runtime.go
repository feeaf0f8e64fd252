// Package runtime is Cortex's execution core: it drives a Run through its
// Unit's ordered actions, persisting progress at every step boundary so a
// crash-restart resumes at the step that was next-to-run (spec.md §4.6, §5).
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// ToolExecutor is the external contract for invoking a named tool with
// resolved arguments (spec.md §4.7, §6.4).
type ToolExecutor interface {
	Execute(ctx context.Context, tool string, args map[string]any, userID string) (any, error)
}

// LLMClient is the external contract for generating text from a prompt
// library key (or raw instruction) and resolved input (spec.md §6.5).
type LLMClient interface {
	Generate(ctx context.Context, promptKey string, input any) (string, error)
}

// Runtime executes Units' action chains against persisted Runs.
type Runtime struct {
	store *store.Store
	tools ToolExecutor
	llm   LLMClient
}

// New creates a Runtime over store, dispatching tool and llm actions to
// the given external collaborators.
func New(s *store.Store, tools ToolExecutor, llm LLMClient) *Runtime {
	return &Runtime{store: s, tools: tools, llm: llm}
}

// Execute is the single entry point driving run through its unit's
// actions (spec.md §4.6). It returns when the run reaches a terminal
// state, a wait suspension, or an unrecoverable load error; Matcher and
// Scheduler call it synchronously and receive no result from it. A run
// already cancelled in the store is left untouched.
func (rt *Runtime) Execute(ctx context.Context, run *models.Run) {
	if rt.cancelledExternally(ctx, run) {
		return
	}

	unit, err := rt.store.Relational.GetUnit(ctx, run.UnitID)
	if err != nil {
		rt.fail(ctx, run, "Unit not found")
		return
	}

	run.Status = config.RunStatusRunning
	if err := rt.store.SaveRun(ctx, run); err != nil {
		slog.Error("failed to persist run transition to running", "run_id", run.ID, "error", err)
		return
	}

	for run.Step < len(unit.Then) {
		if rt.cancelledExternally(ctx, run) {
			return
		}

		action := unit.Then[run.Step]
		result, storeAs, err := rt.dispatch(ctx, &action, run)
		if err != nil {
			rt.failStep(ctx, run, run.Step, action, err)
			return
		}

		if action.Type == config.ActionTypeWait {
			// dispatch already set run to waiting and persisted it; the
			// Scheduler resumes this run later, past this step.
			return
		}

		if storeAs != "" && result != nil {
			if run.Context == nil {
				run.Context = map[string]any{}
			}
			run.Context[storeAs] = result
		}

		rt.logStep(ctx, run.ID, run.Step, action, config.RunStepStatusSuccess, result, "")

		run.Step++
		if err := rt.store.SaveRun(ctx, run); err != nil {
			slog.Error("failed to persist run step advance", "run_id", run.ID, "step", run.Step, "error", err)
			return
		}
	}

	now := time.Now().UTC()
	run.Status = config.RunStatusSuccess
	run.CompletedAt = &now
	if err := rt.store.SaveRun(ctx, run); err != nil {
		slog.Error("failed to persist run completion", "run_id", run.ID, "error", err)
	}
}

// dispatch runs one action and returns its captured result plus the
// context key it should be stored under, if any. A "wait" action mutates
// run in place (status=waiting, resume_at) and persists it itself, since
// the caller must return immediately afterward without logging a step.
func (rt *Runtime) dispatch(ctx context.Context, action *models.Action, run *models.Run) (any, string, error) {
	switch action.Type {
	case config.ActionTypeWait:
		resumeAt := time.Now().UTC().Add(parseWaitDuration(action.Duration))
		run.Status = config.RunStatusWaiting
		run.ResumeAt = &resumeAt
		if err := rt.store.SaveRun(ctx, run); err != nil {
			return nil, "", fmt.Errorf("persist wait: %w", err)
		}
		return nil, "", nil

	case config.ActionTypeLLM:
		input := ResolveArgs(action.Input, run.Context)
		text, err := rt.llm.Generate(ctx, action.Prompt, input)
		if err != nil {
			return nil, "", fmt.Errorf("llm generate: %w", err)
		}
		return text, action.StoreAs, nil

	case config.ActionTypeTool:
		args, _ := ResolveArgs(action.Args, run.Context).(map[string]any)
		data, err := rt.tools.Execute(ctx, action.Tool, args, run.UserID)
		if err != nil {
			return nil, "", fmt.Errorf("tool execute: %w", err)
		}
		return data, action.StoreAs, nil

	default:
		return nil, "", nil
	}
}

func (rt *Runtime) cancelledExternally(ctx context.Context, run *models.Run) bool {
	current, err := rt.store.Relational.GetRun(ctx, run.ID)
	if err != nil {
		return false
	}
	return current.Status == config.RunStatusCancelled
}

func (rt *Runtime) fail(ctx context.Context, run *models.Run, reason string) {
	now := time.Now().UTC()
	run.Status = config.RunStatusFailed
	run.Error = reason
	run.CompletedAt = &now
	if err := rt.store.SaveRun(ctx, run); err != nil {
		slog.Error("failed to persist run failure", "run_id", run.ID, "error", err)
	}
}

func (rt *Runtime) failStep(ctx context.Context, run *models.Run, step int, action models.Action, cause error) {
	rt.logStep(ctx, run.ID, step, action, config.RunStepStatusFailed, nil, cause.Error())
	rt.fail(ctx, run, cause.Error())
}

func (rt *Runtime) logStep(ctx context.Context, runID string, step int, action models.Action, status config.RunStepStatus, result any, errMsg string) {
	now := time.Now().UTC()
	rs := &models.RunStep{
		RunID:        runID,
		StepIndex:    step,
		ActionConfig: action,
		Status:       status,
		Result:       result,
		Error:        errMsg,
		StartedAt:    now,
		CompletedAt:  &now,
	}
	if err := rt.store.LogRunStep(ctx, rs); err != nil {
		slog.Error("failed to log run step", "run_id", runID, "step", step, "error", err)
	}
}

// Rerun loads run's preserved original event payload and creates+executes
// a fresh run against it, or returns store.ErrRerunPayloadMissing if none
// was preserved (spec.md §4.6).
func (rt *Runtime) Rerun(ctx context.Context, runID string) (*models.Run, error) {
	original, payload, err := rt.store.GetRunForRerun(ctx, runID)
	if err != nil {
		return nil, err
	}

	fresh := &models.Run{
		ID:                   store.NewID("run"),
		UnitID:               original.UnitID,
		EventID:              "rerun_" + original.EventID,
		UserID:               original.UserID,
		Status:               config.RunStatusPending,
		Step:                 0,
		Context:              map[string]any{"payload": payload},
		StartedAt:            time.Now().UTC(),
		OriginalEventPayload: payload,
	}

	if err := rt.store.SaveRun(ctx, fresh); err != nil {
		return nil, fmt.Errorf("persist rerun: %w", err)
	}

	rt.Execute(ctx, fresh)
	return fresh, nil
}

// parseWaitDuration parses a wait action's duration string. By design a
// malformed duration resolves to 0 (immediate resume) rather than failing
// the run (spec.md §4.6).
func parseWaitDuration(s string) time.Duration {
	d, err := config.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
