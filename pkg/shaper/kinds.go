package shaper

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// kind identifies which per-entity shaper a provider model routes
// through, matching config.ProviderSpec.EntityShaper.
type kind string

const (
	kindEmail       kind = "email"
	kindCalendar    kind = "calendar"
	kindLead        kind = "lead"
	kindOpportunity kind = "opportunity"
)

var modelToKind = map[string]kind{
	"messages":     kindEmail,
	"events":       kindCalendar,
	"leads":        kindLead,
	"opportunities": kindOpportunity,
}

var kindStateTTL = map[kind]time.Duration{
	kindEmail:       7 * 24 * time.Hour,
	kindCalendar:    30 * 24 * time.Hour,
	kindLead:        60 * 24 * time.Hour,
	kindOpportunity: 60 * 24 * time.Hour,
}

// shapeRecords decodes any record arrays present in payload and routes
// them through the per-kind shaper matching payload.Model, loading and
// persisting shaper state around the call.
func (s *Shaper) shapeRecords(ctx context.Context, payload WebhookPayload, userID string) []*models.Event {
	k, ok := modelToKind[payload.Model]
	if !ok {
		return nil
	}

	records := decodeRecords(payload.ResponseResults.Added)
	records = append(records, decodeRecords(payload.ResponseResults.Updated)...)
	if len(records) == 0 {
		return nil
	}

	state := s.loadShaperState(ctx, k, userID)
	events := ShapeRecordsByKind(string(k), records, userID, state)
	s.saveShaperState(ctx, k, userID, state)
	return events
}

// ShapeRecordsByKind dispatches records through the per-kind shaper named
// by kindName (matching config.ProviderSpec.EntityShaper), mutating state
// in place. The Poller reuses this so poll-derived items are classified
// by the exact same rules as webhook-derived ones (spec.md §4.3 step 2),
// sharing continuity with webhook deliveries through the caller-supplied
// state map.
func ShapeRecordsByKind(kindName string, records []map[string]any, userID string, state map[string]any) []*models.Event {
	switch kind(kindName) {
	case kindEmail:
		return ShapeEmailEvents(records, userID, state)
	case kindCalendar:
		return ShapeCalendarEvents(records, userID, state)
	case kindLead:
		return ShapeLeadEvents(records, userID, state)
	case kindOpportunity:
		return ShapeOpportunityEvents(records, userID, state)
	default:
		return nil
	}
}

func decodeRecords(raw json.RawMessage) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil
	}
	return records
}

func (s *Shaper) loadShaperState(ctx context.Context, k kind, userID string) map[string]any {
	return LoadState(ctx, s.store, string(k), userID)
}

func (s *Shaper) saveShaperState(ctx context.Context, k kind, userID string, state map[string]any) {
	SaveState(ctx, s.store, string(k), userID, state)
}

// LoadState reads the per-(kind,user) shaper state bucket, used by both
// the webhook pipeline and the Poller so poll- and webhook-derived items
// classify against the same prior-value history.
func LoadState(ctx context.Context, s *store.Store, kindName, userID string) map[string]any {
	key := store.ShaperStateKey(kindName, userID)
	raw, ok, err := s.Ephemeral.Get(ctx, key)
	if err != nil || !ok {
		return map[string]any{}
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return map[string]any{}
	}
	return state
}

// SaveState persists the per-(kind,user) shaper state bucket.
func SaveState(ctx context.Context, s *store.Store, kindName, userID string, state map[string]any) {
	key := store.ShaperStateKey(kindName, userID)
	raw, err := json.Marshal(state)
	if err != nil {
		slog.Warn("failed to marshal shaper state", "kind", kindName, "user_id", userID, "error", err)
		return
	}
	if err := s.Ephemeral.Set(ctx, key, raw, kindStateTTL[kind(kindName)]); err != nil {
		slog.Warn("failed to persist shaper state", "kind", kindName, "user_id", userID, "error", err)
	}
}

func newEvent(userID, source, eventName, dedupeKey string, payload map[string]any) *models.Event {
	return &models.Event{
		ID:        store.NewID("evt"),
		UserID:    userID,
		Source:    source,
		Event:     eventName,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Meta:      models.EventMeta{DedupeKey: dedupeKey},
	}
}

func stringField(record map[string]any, field string) string {
	v, ok := record[field]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolField(record map[string]any, field string) bool {
	v, ok := record[field]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func floatField(record map[string]any, field string) (float64, bool) {
	v, ok := record[field]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
