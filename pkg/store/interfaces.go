package store

import (
	"context"
	"time"

	"github.com/cortexrun/cortex/pkg/models"
)

// RelationalStore is the durable store of record: units, runs, run steps,
// and connections. Implementations must provide strong consistency for
// these — it is the canonical source of truth anything a human or audit
// cares about reads from (spec.md §4.1).
type RelationalStore interface {
	SaveUnit(ctx context.Context, unit *models.Unit) error
	GetUnit(ctx context.Context, id string) (*models.Unit, error)
	GetUnitsByTrigger(ctx context.Context, source, event string) ([]*models.Unit, error)
	ListUnits(ctx context.Context, owner string) ([]*models.Unit, error)
	DeleteUnit(ctx context.Context, id string) error
	CountActiveUnits(ctx context.Context) (int, error)

	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error)
	CountRunsSince(ctx context.Context, since time.Time) (int, error)
	CancelRunsForUnit(ctx context.Context, unitID string) error

	LogRunStep(ctx context.Context, step *models.RunStep) error
	ListRunSteps(ctx context.Context, runID string) ([]*models.RunStep, error)

	SaveConnection(ctx context.Context, conn *models.Connection) error
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	ListConnections(ctx context.Context, userID string) ([]*models.Connection, error)
	ListEnabledConnections(ctx context.Context) ([]*models.Connection, error)
	RecordPollResult(ctx context.Context, id string, success bool, errMsg string) error
	SetConnectionEnabled(ctx context.Context, id string, enabled bool) error
	CountEnabledConnections(ctx context.Context) (int, error)

	// Ping reports whether the relational store is reachable, for the
	// health endpoint (spec.md supplemented features).
	Ping(ctx context.Context) error
}

// EphemeralStore is the TTL-capable, pub/sub-capable, sorted-set-capable
// keyed store: recent events, dedup markers, poller/shaper state, the
// connection-owner cache, and the wait queue (spec.md §4.1, §6.6).
type EphemeralStore interface {
	// SetIfAbsent atomically sets key to value with the given TTL only if
	// key does not already exist, reporting whether it set the value.
	// Used for dedupe markers (gmail:m1-style keys) and the webhook-level
	// dedup check.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error

	Publish(ctx context.Context, channel string, payload []byte) error

	// EnqueueWait adds/updates runID's entry in the wait queue with score
	// resumeAt (epoch ms).
	EnqueueWait(ctx context.Context, runID string, resumeAt time.Time) error
	// DequeueDue atomically removes and returns run ids whose score is
	// <= before's epoch milliseconds, so a run cannot be scheduled twice in one tick
	// (spec.md §4.8).
	DequeueDue(ctx context.Context, before time.Time) ([]string, error)
	// RemoveWait removes runID's entry from the wait queue, used when a
	// run leaves the waiting status any other way (e.g. cancellation).
	RemoveWait(ctx context.Context, runID string) error

	// Ping reports whether the ephemeral store is reachable, for the
	// health endpoint (spec.md supplemented features).
	Ping(ctx context.Context) error
}
