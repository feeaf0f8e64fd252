// Package shaper implements Cortex's EventShaper: it turns raw provider
// deliveries (webhook syncs, poller pull batches) into normalized Events,
// classifying each record into a semantic event name (spec.md §4.2).
package shaper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

const (
	webhookDedupeTTL        = 300 * time.Second
	connectionOwnerCacheTTL = time.Hour
)

// Emitter receives a shaped Event. Implementations (the Matcher, in
// production) should tolerate being called many times concurrently and
// must not block the caller for long — the webhook handler treats emit as
// fire-and-forget once dedup has passed (spec.md §5).
type Emitter func(ctx context.Context, event *models.Event) error

// Shaper turns webhook and poller deliveries into Events.
type Shaper struct {
	store *store.Store
	emit  Emitter
}

// New creates a Shaper backed by s, handing every shaped event to emit.
func New(s *store.Store, emit Emitter) *Shaper {
	return &Shaper{store: s, emit: emit}
}

// WebhookPayload is the body EventShaper.handleWebhook parses from a
// Nango-style sync webhook (spec.md §4.2, §6.1).
type WebhookPayload struct {
	ConnectionID    string          `json:"connectionId"`
	Model           string          `json:"model"`
	SyncName        string          `json:"syncName"`
	ResponseResults ResponseResults `json:"responseResults"`
}

// ResponseResults carries the added/updated (and optionally deleted)
// counts or record arrays a sync webhook reports.
type ResponseResults struct {
	Added   json.RawMessage `json:"added,omitempty"`
	Updated json.RawMessage `json:"updated,omitempty"`
	Deleted json.RawMessage `json:"deleted,omitempty"`
}

// HandleWebhookResult reports how many events HandleWebhook emitted.
type HandleWebhookResult struct {
	Processed int
}

// HandleWebhook implements the webhook ingestion pipeline: dedupe, owner
// resolution, sync_completed emission, and per-record shaping (spec.md
// §4.2).
func (s *Shaper) HandleWebhook(ctx context.Context, payload WebhookPayload) (HandleWebhookResult, error) {
	dedupeKey := store.WebhookDedupeKey(payload.ConnectionID, payload.Model)
	isNew, err := s.store.Ephemeral.SetIfAbsent(ctx, dedupeKey, []byte("1"), webhookDedupeTTL)
	if err != nil {
		return HandleWebhookResult{}, fmt.Errorf("check webhook dedupe: %w", err)
	}
	if !isNew {
		return HandleWebhookResult{}, nil
	}

	userID, ok := s.ResolveOwner(ctx, payload.ConnectionID)
	if !ok {
		slog.Warn("webhook dropped, no owner for connection", "connection_id", payload.ConnectionID)
		return HandleWebhookResult{}, nil
	}

	addedCount := countRecords(payload.ResponseResults.Added)
	updatedCount := countRecords(payload.ResponseResults.Updated)
	if addedCount == 0 && updatedCount == 0 {
		return HandleWebhookResult{}, nil
	}

	processed := 0

	syncEvent := &models.Event{
		ID:     store.NewID("evt"),
		UserID: userID,
		Source: payload.SyncName,
		Event:  "sync_completed",
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"connection_id": payload.ConnectionID,
			"model":         payload.Model,
			"added":         addedCount,
			"updated":       updatedCount,
		},
		Meta: models.EventMeta{DedupeKey: payload.ConnectionID + "_" + payload.Model},
	}
	if err := s.emitTolerant(ctx, syncEvent); err == nil {
		processed++
	}

	for _, events := range s.shapeRecords(ctx, payload, userID) {
		if err := s.emitTolerant(ctx, events); err == nil {
			processed++
		}
	}

	return HandleWebhookResult{Processed: processed}, nil
}

// emitTolerant emits a single event, logging (not propagating) failure so
// one event's emit failure never blocks another's (spec.md §4.2 step 7:
// allSettled semantics).
func (s *Shaper) emitTolerant(ctx context.Context, event *models.Event) error {
	if err := s.emit(ctx, event); err != nil {
		slog.Warn("event emit failed", "event_id", event.ID, "event", event.Event, "error", err)
		return err
	}
	return nil
}

// ResolveOwner looks up the user owning connectionID via the
// connection-owner cache, falling back to the relational connections
// table and repopulating the cache on a miss. Exported so the webhook
// API handler can resolve an owner for "auth" deliveries too (spec.md
// §6.1), not just the webhook pipeline itself.
func (s *Shaper) ResolveOwner(ctx context.Context, connectionID string) (string, bool) {
	key := store.ConnectionOwnerKey(connectionID)
	if cached, ok, err := s.store.Ephemeral.Get(ctx, key); err == nil && ok {
		return string(cached), true
	}

	conn, err := s.store.Relational.GetConnection(ctx, connectionID)
	if err != nil {
		return "", false
	}

	if err := s.store.Ephemeral.Set(ctx, key, []byte(conn.UserID), connectionOwnerCacheTTL); err != nil {
		slog.Warn("failed to repopulate connection-owner cache", "connection_id", connectionID, "error", err)
	}
	return conn.UserID, true
}

// RegisterConnectionOwner writes the connection-owner cache entry
// directly, used by connection registration (spec.md §6.2) so a
// newly-registered connection's owner is immediately resolvable without
// waiting for a relational round-trip.
func (s *Shaper) RegisterConnectionOwner(ctx context.Context, connectionID, userID string) error {
	return s.store.Ephemeral.Set(ctx, store.ConnectionOwnerKey(connectionID), []byte(userID), connectionOwnerCacheTTL)
}

func countRecords(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return len(arr)
	}
	return 0
}
