// Package storetest provides in-memory implementations of
// store.RelationalStore and store.EphemeralStore for use in other
// packages' tests, so pkg/runtime, pkg/scheduler, and pkg/matcher can
// exercise the persistence contracts without a live Postgres/Redis.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// Relational is an in-memory store.RelationalStore.
type Relational struct {
	mu          sync.Mutex
	units       map[string]*models.Unit
	runs        map[string]*models.Run
	runSteps    map[string][]*models.RunStep
	connections map[string]*models.Connection
}

// NewRelational returns an empty in-memory relational store.
func NewRelational() *Relational {
	return &Relational{
		units:       make(map[string]*models.Unit),
		runs:        make(map[string]*models.Run),
		runSteps:    make(map[string][]*models.RunStep),
		connections: make(map[string]*models.Connection),
	}
}

func clone[T any](v T) T { return v }

func (r *Relational) SaveUnit(_ context.Context, u *models.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := clone(*u)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	r.units[u.ID] = &cp
	*u = cp
	return nil
}

func (r *Relational) GetUnit(_ context.Context, id string) (*models.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[id]
	if !ok {
		return nil, store.ErrUnitNotFound
	}
	cp := clone(*u)
	return &cp, nil
}

func (r *Relational) GetUnitsByTrigger(_ context.Context, source, event string) ([]*models.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Unit
	for _, u := range r.units {
		if u.Status == config.UnitStatusActive && u.When.Type == config.TriggerTypeEvent &&
			u.When.Source == source && u.When.Event == event {
			cp := clone(*u)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *Relational) ListUnits(_ context.Context, owner string) ([]*models.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Unit
	for _, u := range r.units {
		if u.Owner == owner {
			cp := clone(*u)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Relational) DeleteUnit(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return store.ErrUnitNotFound
	}
	delete(r.units, id)
	return nil
}

func (r *Relational) CountActiveUnits(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.units {
		if u.Status == config.UnitStatusActive {
			n++
		}
	}
	return n, nil
}

func (r *Relational) SaveRun(_ context.Context, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	cp := clone(*run)
	r.runs[run.ID] = &cp
	return nil
}

func (r *Relational) GetRun(_ context.Context, id string) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	cp := clone(*run)
	return &cp, nil
}

func (r *Relational) ListRuns(_ context.Context, filters models.RunFilters) ([]*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Run
	for _, run := range r.runs {
		if filters.UnitID != "" && run.UnitID != filters.UnitID {
			continue
		}
		if filters.UserID != "" && run.UserID != filters.UserID {
			continue
		}
		cp := clone(*run)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if filters.Offset > 0 && filters.Offset < len(out) {
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(out) {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (r *Relational) CountRunsSince(_ context.Context, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, run := range r.runs {
		if !run.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *Relational) CancelRunsForUnit(_ context.Context, unitID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, run := range r.runs {
		if run.UnitID != unitID {
			continue
		}
		switch run.Status {
		case config.RunStatusPending, config.RunStatusRunning, config.RunStatusWaiting:
			run.Status = config.RunStatusCancelled
			run.CompletedAt = &now
		}
	}
	return nil
}

func (r *Relational) LogRunStep(_ context.Context, step *models.RunStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if step.StartedAt.IsZero() {
		step.StartedAt = time.Now().UTC()
	}
	cp := clone(*step)
	steps := r.runSteps[step.RunID]
	for i, s := range steps {
		if s.StepIndex == step.StepIndex {
			steps[i] = &cp
			r.runSteps[step.RunID] = steps
			return nil
		}
	}
	r.runSteps[step.RunID] = append(steps, &cp)
	return nil
}

func (r *Relational) ListRunSteps(_ context.Context, runID string) ([]*models.RunStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := append([]*models.RunStep(nil), r.runSteps[runID]...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepIndex < steps[j].StepIndex })
	return steps, nil
}

// SaveConnection upserts keyed on (user_id, provider), mirroring the real
// store's unique constraint (spec.md §6.6): re-registering a provider
// reuses the existing row's id instead of creating a duplicate.
func (r *Relational) SaveConnection(_ context.Context, c *models.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.connections {
		if existing.UserID == c.UserID && existing.Provider == c.Provider {
			c.ID = id
			c.CreatedAt = existing.CreatedAt
			break
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := clone(*c)
	r.connections[c.ID] = &cp
	return nil
}

func (r *Relational) GetConnection(_ context.Context, id string) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return nil, store.ErrConnectionNotFound
	}
	cp := clone(*c)
	return &cp, nil
}

func (r *Relational) ListConnections(_ context.Context, userID string) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, c := range r.connections {
		if c.UserID == userID {
			cp := clone(*c)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *Relational) ListEnabledConnections(_ context.Context) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, c := range r.connections {
		if c.Enabled {
			cp := clone(*c)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *Relational) RecordPollResult(_ context.Context, id string, success bool, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return store.ErrConnectionNotFound
	}
	now := time.Now().UTC()
	if success {
		c.LastPollAt = &now
		c.ErrorCount = 0
		c.LastError = ""
		return nil
	}
	c.ErrorCount++
	c.LastError = errMsg
	if c.ErrorCount > 10 {
		c.Enabled = false
	}
	return nil
}

func (r *Relational) SetConnectionEnabled(_ context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return store.ErrConnectionNotFound
	}
	c.Enabled = enabled
	if enabled {
		c.ErrorCount = 0
	}
	return nil
}

func (r *Relational) CountEnabledConnections(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.connections {
		if c.Enabled {
			n++
		}
	}
	return n, nil
}

// Ping always succeeds; the fake has no connection to lose.
func (r *Relational) Ping(_ context.Context) error {
	return nil
}

// Ephemeral is an in-memory store.EphemeralStore. TTLs are tracked but
// only enforced lazily, on read, which is sufficient for deterministic
// tests.
type Ephemeral struct {
	mu   sync.Mutex
	vals map[string]ephemeralEntry
	wait map[string]int64
}

type ephemeralEntry struct {
	value   []byte
	expires time.Time
}

// NewEphemeral returns an empty in-memory ephemeral store.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{
		vals: make(map[string]ephemeralEntry),
		wait: make(map[string]int64),
	}
}

func (e *Ephemeral) expired(entry ephemeralEntry) bool {
	return !entry.expires.IsZero() && time.Now().After(entry.expires)
}

func (e *Ephemeral) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.vals[key]; ok && !e.expired(entry) {
		return false, nil
	}
	e.vals[key] = newEntry(value, ttl)
	return true, nil
}

func (e *Ephemeral) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vals[key] = newEntry(value, ttl)
	return nil
}

func (e *Ephemeral) Get(_ context.Context, key string) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.vals[key]
	if !ok || e.expired(entry) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (e *Ephemeral) Delete(_ context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.vals, key)
	return nil
}

// Published records channel/payload pairs handed to Publish, for tests
// that assert on fan-out without a real subscriber.
func (e *Ephemeral) Publish(_ context.Context, channel string, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vals["__published__:"+channel] = newEntry(payload, 0)
	return nil
}

func (e *Ephemeral) EnqueueWait(_ context.Context, runID string, resumeAt time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wait[runID] = resumeAt.UnixMilli()
	return nil
}

func (e *Ephemeral) DequeueDue(_ context.Context, before time.Time) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := before.UnixMilli()
	var due []string
	for id, score := range e.wait {
		if score <= cutoff {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	for _, id := range due {
		delete(e.wait, id)
	}
	return due, nil
}

func (e *Ephemeral) RemoveWait(_ context.Context, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.wait, runID)
	return nil
}

// Ping always succeeds; the fake has no connection to lose.
func (e *Ephemeral) Ping(_ context.Context) error {
	return nil
}

func newEntry(value []byte, ttl time.Duration) ephemeralEntry {
	entry := ephemeralEntry{value: value}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	return entry
}
