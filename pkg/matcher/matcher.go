// Package matcher finds the active units a newly ingested event triggers
// and allocates their runs (spec.md §4.5).
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// Runtime is the subset of pkg/runtime.Runtime the Matcher hands newly
// allocated runs to. Kept as an interface so matcher tests don't need a
// real Runtime.
type Runtime interface {
	Execute(ctx context.Context, run *models.Run)
}

// Matcher evaluates an event against active units and fires matching runs.
type Matcher struct {
	store   *store.Store
	runtime Runtime
}

// New creates a Matcher over store for unit/run persistence, handing
// matched runs to runtime for execution.
func New(s *store.Store, runtime Runtime) *Matcher {
	return &Matcher{store: s, runtime: runtime}
}

// Match loads units triggered by (event.Source, event.Event), evaluates
// each one's conditions, persists a Run for every match, and hands each to
// Runtime.Execute on the caller's goroutine. It returns only after every
// matched run has executed to a terminal state or a wait suspension;
// execution is not detached from the caller (spec.md §4.5).
func (m *Matcher) Match(ctx context.Context, event *models.Event) ([]*models.Run, error) {
	units, err := m.store.GetUnitsByTrigger(ctx, event.Source, event.Event)
	if err != nil {
		return nil, fmt.Errorf("load units by trigger: %w", err)
	}

	var runs []*models.Run
	for _, unit := range units {
		if !evaluateConditions(unit.If, event.Payload) {
			continue
		}

		run := &models.Run{
			ID:                   store.NewID("run"),
			UnitID:               unit.ID,
			EventID:              event.ID,
			UserID:               event.UserID,
			Status:               config.RunStatusPending,
			Step:                 0,
			Context:              map[string]any{"payload": event.Payload},
			StartedAt:            time.Now().UTC(),
			OriginalEventPayload: event.Payload,
		}

		if err := m.store.SaveRun(ctx, run); err != nil {
			slog.Error("failed to persist matched run", "unit_id", unit.ID, "event_id", event.ID, "error", err)
			continue
		}

		runs = append(runs, run)
		m.runtime.Execute(ctx, run)
	}

	return runs, nil
}

// evaluateConditions applies AND-only semantics across conditions; an
// empty list matches unconditionally (spec.md §4.5).
func evaluateConditions(conditions []models.Condition, payload map[string]any) bool {
	for _, c := range conditions {
		if !evaluateCondition(c, payload) {
			return false
		}
	}
	return true
}

func evaluateCondition(c models.Condition, payload map[string]any) bool {
	actual, exists := resolvePath(payload, c.Field)

	switch c.Op {
	case config.OpExists:
		return exists
	case config.OpEq:
		return exists && equalValues(actual, c.Value)
	case config.OpNeq:
		return !exists || !equalValues(actual, c.Value)
	case config.OpContains:
		return exists && containsSubstring(actual, c.Value)
	case config.OpIn:
		return exists && inList(actual, c.Value)
	case config.OpGt, config.OpGte, config.OpLt, config.OpLte:
		return exists && compareNumeric(actual, c.Value, c.Op)
	default:
		return false
	}
}

// resolvePath walks a dotted path (e.g. "payload.from") into a nested
// map[string]any tree. Missing segments resolve to (nil, false).
func resolvePath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = data
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func equalValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func containsSubstring(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return false
	}
	return strings.Contains(strings.ToLower(as), strings.ToLower(bs))
}

func inList(a, b any) bool {
	list, ok := b.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if equalValues(a, item) {
			return true
		}
	}
	return false
}

func compareNumeric(a, b any, op config.ConditionOp) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case config.OpGt:
		return af > bf
	case config.OpGte:
		return af >= bf
	case config.OpLt:
		return af < bf
	case config.OpLte:
		return af <= bf
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
