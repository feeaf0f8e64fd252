// Package store implements Cortex's hybrid persistence model: a durable
// relational store for units, runs, run steps, and connections, and an
// ephemeral keyed store for recent events, dedup markers, shaper/poller
// state, and the wait queue (spec.md §4.1).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
)

const (
	eventTTLDefault  = 7 * 24 * time.Hour
	dedupeTTLDefault = 7 * 24 * time.Hour
)

// Store composes the relational and ephemeral backends and implements the
// public operations spec.md §4.1 describes, including the invariants that
// span both backends (dedup-then-persist, wait-queue bijection).
type Store struct {
	Relational RelationalStore
	Ephemeral  EphemeralStore

	EventTTL  time.Duration
	DedupeTTL time.Duration
}

// New creates a Store over the given backends, using spec.md's default
// TTLs unless overridden by retention config through NewWithRetention.
func New(relational RelationalStore, ephemeral EphemeralStore) *Store {
	return &Store{
		Relational: relational,
		Ephemeral:  ephemeral,
		EventTTL:   eventTTLDefault,
		DedupeTTL:  dedupeTTLDefault,
	}
}

// NewWithRetention creates a Store whose TTLs come from the loaded
// RetentionConfig instead of spec.md's bare defaults.
func NewWithRetention(relational RelationalStore, ephemeral EphemeralStore, retention *config.RetentionConfig) *Store {
	s := New(relational, ephemeral)
	if retention != nil {
		s.EventTTL = retention.EventTTL
		s.DedupeTTL = retention.DedupeTTL
	}
	return s
}

// WriteEvent persists e exactly-once-accepted via its dedupe key. Returns
// false with no side effects if the key was already seen; otherwise
// persists the event, sets the dedupe marker, and publishes on
// events:{user_id} (spec.md §4.1, invariant 4).
func (s *Store) WriteEvent(ctx context.Context, e *models.Event) (bool, error) {
	if e.Meta.DedupeKey != "" {
		key := dedupeKey(e.Meta.DedupeKey)
		set, err := s.Ephemeral.SetIfAbsent(ctx, key, []byte("1"), s.DedupeTTL)
		if err != nil {
			return false, fmt.Errorf("check dedupe marker: %w", err)
		}
		if !set {
			return false, nil
		}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	if err := s.Ephemeral.Set(ctx, eventKey(e.ID), payload, s.EventTTL); err != nil {
		return false, fmt.Errorf("persist event: %w", err)
	}

	// Publishing is fire-and-forget; subscribers are not part of the
	// correctness story (spec.md §4.1).
	if err := s.Ephemeral.Publish(ctx, userEventsChannel(e.UserID), payload); err != nil {
		slog.Warn("event publish failed", "event_id", e.ID, "user_id", e.UserID, "error", err)
	}

	return true, nil
}

// SaveUnit upserts u by id, delegating directly to the relational store.
func (s *Store) SaveUnit(ctx context.Context, u *models.Unit) error {
	return s.Relational.SaveUnit(ctx, u)
}

// GetUnitsByTrigger returns active units whose when.type=event matches
// (source, event).
func (s *Store) GetUnitsByTrigger(ctx context.Context, source, event string) ([]*models.Unit, error) {
	return s.Relational.GetUnitsByTrigger(ctx, source, event)
}

// SaveRun upserts run. If run is waiting with a resume_at set, it is
// enrolled in the wait queue at score ms(resume_at); otherwise any
// existing wait-queue entry is removed. The ephemeral-store mutation is
// retried once in-process on failure; if it still fails, run is reverted
// to running before returning an error, so a timer is never silently
// lost (spec.md §4.1, §7).
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if err := s.Relational.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}

	if run.Status == config.RunStatusWaiting && run.ResumeAt != nil {
		return s.enrollWaitQueue(ctx, run)
	}
	return s.Ephemeral.RemoveWait(ctx, run.ID)
}

func (s *Store) enrollWaitQueue(ctx context.Context, run *models.Run) error {
	op := func() error {
		return s.Ephemeral.EnqueueWait(ctx, run.ID, *run.ResumeAt)
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		run.Status = config.RunStatusRunning
		if revertErr := s.Relational.SaveRun(ctx, run); revertErr != nil {
			return fmt.Errorf("%w: %v (revert also failed: %v)", ErrWaitQueueWrite, err, revertErr)
		}
		return fmt.Errorf("%w: %v", ErrWaitQueueWrite, err)
	}
	return nil
}

// GetWaitingRuns returns, and dequeues, every run whose wait-queue score
// is due by before, hydrated from the relational store.
func (s *Store) GetWaitingRuns(ctx context.Context, before time.Time) ([]*models.Run, error) {
	ids, err := s.Ephemeral.DequeueDue(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("dequeue due waits: %w", err)
	}

	runs := make([]*models.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.Relational.GetRun(ctx, id)
		if err != nil {
			slog.Error("wait queue entry referenced missing run", "run_id", id, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// LogRunStep upserts a RunStep on (run_id, step_index).
func (s *Store) LogRunStep(ctx context.Context, step *models.RunStep) error {
	return s.Relational.LogRunStep(ctx, step)
}

// GetRunForRerun returns the run and its preserved original event payload
// needed to synthesize a new run, or ErrRerunPayloadMissing if none was
// preserved.
func (s *Store) GetRunForRerun(ctx context.Context, runID string) (*models.Run, map[string]any, error) {
	run, err := s.Relational.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run.OriginalEventPayload == nil {
		return nil, nil, ErrRerunPayloadMissing
	}
	return run, run.OriginalEventPayload, nil
}

func eventKey(id string) string   { return "event:" + id }
func dedupeKey(key string) string { return "dedupe:" + key }

func userEventsChannel(userID string) string { return "events:" + userID }

// WebhookDedupeKey builds the dedup key for a webhook sync delivery,
// shared by the EventShaper's webhook path and its tests.
func WebhookDedupeKey(connID, model string) string { return "webhook:" + connID + ":" + model }

// PollerStateKey builds the ephemeral key holding a (provider,user)'s
// last-sync-time bookkeeping.
func PollerStateKey(provider, userID string) string { return "poller:" + provider + ":" + userID }

// ShaperStateKey builds the ephemeral key holding a (kind,user)'s prior
// per-entity shaper state.
func ShaperStateKey(kind, userID string) string { return "shaper:" + kind + ":" + userID }

// ConnectionOwnerKey builds the ephemeral key caching a connection id's
// owning user id.
func ConnectionOwnerKey(connID string) string { return "connection-owner:" + connID }

// NewID generates a fresh, globally unique id for an Event, Run, or Unit.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
