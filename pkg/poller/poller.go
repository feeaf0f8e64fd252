// Package poller implements Cortex's periodic pull fallback: for every
// enabled connection, fetch whatever changed since the last successful
// poll and submit it through the same event pipeline webhooks use
// (spec.md §4.3).
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/shaper"
	"github.com/cortexrun/cortex/pkg/store"
)

// Gateway fetches a provider's resource items updated since a cursor. The
// real implementation calls out to the provider gateway (Nango or
// equivalent); it is an external collaborator, not reimplemented here.
type Gateway interface {
	FetchItems(ctx context.Context, provider, resource string, since time.Time) ([]map[string]any, error)
}

// Emitter receives a shaped poll-derived Event, handed to the same
// callback webhooks use (spec.md §4.3 step 2: "submit via processEvent,
// same callback webhooks use").
type Emitter func(ctx context.Context, event *models.Event) error

const defaultLookback = time.Hour

// Poller runs the periodic pull-fallback loop.
type Poller struct {
	store     *store.Store
	providers *config.ProviderRegistry
	gateway   Gateway
	emit      Emitter
	interval  time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	lastTick atomic.Int64 // unix nano of last completed tick
}

// New creates a Poller that ticks every interval.
func New(s *store.Store, providers *config.ProviderRegistry, gateway Gateway, emit Emitter, interval time.Duration) *Poller {
	return &Poller{
		store:     s,
		providers: providers,
		gateway:   gateway,
		emit:      emit,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the tick loop in a goroutine. start is idempotent only in
// the sense that calling it once per Poller is the contract; callers must
// not call Start twice on the same instance.
func (p *Poller) Start(ctx context.Context) {
	p.lastTick.Store(time.Now().UnixNano())
	go p.run(ctx)
}

// Health reports whether the poller has ticked recently enough to trust
// it isn't stuck, for the health endpoint. A poller that has never missed
// more than two intervals is considered healthy.
func (p *Poller) Health() (healthy bool, detail string) {
	last := time.Unix(0, p.lastTick.Load())
	since := time.Since(last)
	if since > 2*p.interval {
		return false, fmt.Sprintf("no tick in %s (interval %s)", since.Round(time.Second), p.interval)
	}
	return true, ""
}

// Stop signals the loop to stop and waits for the in-flight tick to
// drain before returning (spec.md §4.3 step 5).
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				slog.Error("poller tick failed", "error", err)
			}
			p.lastTick.Store(time.Now().UnixNano())
		}
	}
}

// Tick runs one pull cycle over every enabled connection, one at a time
// (spec.md §4.3 step 5: "one tick at a time per process"). Exported so
// tests can drive a single tick deterministically instead of racing the
// ticker.
func (p *Poller) Tick(ctx context.Context) error {
	conns, err := p.store.Relational.ListEnabledConnections(ctx)
	if err != nil {
		return fmt.Errorf("list enabled connections: %w", err)
	}

	for _, conn := range conns {
		p.pollConnection(ctx, conn)
	}
	return nil
}

func (p *Poller) pollConnection(ctx context.Context, conn *models.Connection) {
	spec, err := p.providers.Get(conn.Provider)
	if err != nil {
		slog.Warn("poller: unknown provider, skipping connection", "provider", conn.Provider, "connection_id", conn.ID)
		return
	}

	since := p.loadLastSyncTime(ctx, conn.Provider, conn.UserID)

	items, err := p.gateway.FetchItems(ctx, conn.Provider, spec.Resource, since)
	if err != nil {
		p.recordFailure(ctx, conn, err)
		return
	}

	now := time.Now().UTC()
	var fresh []freshItem
	for _, item := range items {
		itemTime, ok := itemTimestamp(item, now)
		if !ok || !itemTime.After(since) {
			continue
		}
		fresh = append(fresh, freshItem{record: item, at: itemTime})
	}

	if len(fresh) > 0 {
		p.emitItems(ctx, conn, spec, fresh, now)
	}

	p.recordSuccess(ctx, conn, now)
}

type freshItem struct {
	record map[string]any
	at     time.Time
}

// emitItems classifies every fresh item through the same per-kind shaper
// rules webhook deliveries use (spec.md §4.3 step 2: "matching the shaper
// rules in §4.2"), then rewrites each resulting Event's id and dedupe key
// to the poller-specific formats spec.md §4.3 mandates before emitting.
func (p *Poller) emitItems(ctx context.Context, conn *models.Connection, spec *config.ProviderSpec, fresh []freshItem, now time.Time) {
	records := make([]map[string]any, len(fresh))
	byID := make(map[string]freshItem, len(fresh))
	for i, f := range fresh {
		records[i] = f.record
		if id := stringField(f.record, "id"); id != "" {
			byID[id] = f
		} else if id := stringField(f.record, "Id"); id != "" {
			byID[id] = f
		}
	}

	state := shaper.LoadState(ctx, p.store, spec.EntityShaper, conn.UserID)
	events := shaper.ShapeRecordsByKind(spec.EntityShaper, records, conn.UserID, state)
	shaper.SaveState(ctx, p.store, spec.EntityShaper, conn.UserID, state)

	for _, event := range events {
		itemID, _ := event.Payload["id"].(string)
		f, ok := byID[itemID]
		if !ok {
			continue
		}
		event.ID = fmt.Sprintf("%s_%s_%d", conn.Provider, itemID, now.UnixNano())
		event.Meta.DedupeKey = fmt.Sprintf("%s:%s:%d", conn.Provider, itemID, f.at.UnixNano())
		event.Source = conn.Provider

		if err := p.emit(ctx, event); err != nil {
			slog.Warn("poller: event emit failed", "event_id", event.ID, "error", err)
		}
	}
}

func (p *Poller) loadLastSyncTime(ctx context.Context, provider, userID string) time.Time {
	raw, ok, err := p.store.Ephemeral.Get(ctx, store.PollerStateKey(provider, userID))
	if err != nil || !ok {
		return time.Now().UTC().Add(-defaultLookback)
	}

	var state struct {
		LastSyncTime time.Time `json:"last_sync_time"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return time.Now().UTC().Add(-defaultLookback)
	}
	return state.LastSyncTime
}

func (p *Poller) saveLastSyncTime(ctx context.Context, provider, userID string, at time.Time) {
	payload, err := json.Marshal(struct {
		LastSyncTime time.Time `json:"last_sync_time"`
	}{LastSyncTime: at})
	if err != nil {
		return
	}
	if err := p.store.Ephemeral.Set(ctx, store.PollerStateKey(provider, userID), payload, 30*24*time.Hour); err != nil {
		slog.Warn("poller: failed to persist poller state", "provider", provider, "user_id", userID, "error", err)
	}
}

func (p *Poller) recordSuccess(ctx context.Context, conn *models.Connection, at time.Time) {
	p.saveLastSyncTime(ctx, conn.Provider, conn.UserID, at)
	if err := p.store.Relational.RecordPollResult(ctx, conn.ID, true, ""); err != nil {
		slog.Warn("poller: failed to record poll success", "connection_id", conn.ID, "error", err)
	}
}

func (p *Poller) recordFailure(ctx context.Context, conn *models.Connection, cause error) {
	if err := p.store.Relational.RecordPollResult(ctx, conn.ID, false, cause.Error()); err != nil {
		slog.Warn("poller: failed to record poll failure", "connection_id", conn.ID, "error", err)
	}
}

// itemTimestamp resolves a polled item's effective time following the
// created_at|updated_at|now precedence spec.md §4.3 step 2 names.
func itemTimestamp(item map[string]any, now time.Time) (time.Time, bool) {
	for _, field := range []string{"created_at", "updated_at"} {
		if raw := stringField(item, field); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t, true
			}
		}
	}
	return now, true
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
