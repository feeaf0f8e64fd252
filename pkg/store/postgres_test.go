//go:build integration

package store_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// Postgres integration tests run in their own per-test schema against a
// shared testcontainer (local dev) or CI_DATABASE_URL (CI), the same
// isolation strategy the teacher's test/util.SetupTestDatabase uses.

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

func sharedDatabaseConnStr(t *testing.T) string {
	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		return ci
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := tcpostgres.Run(ctx, "postgres:17-alpine",
			tcpostgres.WithDatabase("test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		connStr, err := c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr)
	return sharedConnStr
}

func newSchemaName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(suffix))
}

// setupPostgresStore creates an isolated schema, applies migrations into
// it, and returns a PostgresStore scoped to that schema.
func setupPostgresStore(t *testing.T) *store.PostgresStore {
	ctx := context.Background()
	connStr := sharedDatabaseConnStr(t)
	schema := newSchemaName(t)

	admin, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	t.Cleanup(func() {
		cleanup, err := sql.Open("pgx", connStr)
		if err == nil {
			_, _ = cleanup.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
			_ = cleanup.Close()
		}
	})

	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	db, err := sql.Open("pgx", fmt.Sprintf("%s%ssearch_path=%s", connStr, separator, schema))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{SchemaName: schema})
	require.NoError(t, err)
	source, err := iofs.New(store.MigrationsFS(), "migrations")
	require.NoError(t, err)
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	require.NoError(t, err)
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err)
	}

	return store.NewPostgresStoreFromDB(db)
}

func TestPostgresStoreUnitRoundTrip(t *testing.T) {
	ps := setupPostgresStore(t)
	ctx := context.Background()

	unit := &models.Unit{
		ID:    store.NewID("unit"),
		Owner: "user_1",
		Name:  "vip email alert",
		Raw:   models.RawUnit{When: "a vip emails me", Then: "notify me"},
		When:  models.Trigger{Type: config.TriggerTypeEvent, Source: "gmail", Event: "email.received"},
		If: []models.Condition{
			{Field: "payload.from", Op: config.OpContains, Value: "vip@example.com"},
		},
		Then:   []models.Action{{Type: config.ActionTypeTool, Tool: "gmail.send_email"}},
		Status: config.UnitStatusActive,
	}

	require.NoError(t, ps.SaveUnit(ctx, unit))

	fetched, err := ps.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	require.Equal(t, unit.Name, fetched.Name)
	require.Equal(t, unit.If[0].Value, fetched.If[0].Value)

	matched, err := ps.GetUnitsByTrigger(ctx, "gmail", "email.received")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, unit.ID, matched[0].ID)
}

func TestPostgresStoreRunUniquePerUnitEvent(t *testing.T) {
	ps := setupPostgresStore(t)
	ctx := context.Background()

	unit := &models.Unit{ID: store.NewID("unit"), Owner: "u", Name: "n", When: models.Trigger{Type: config.TriggerTypeEvent, Source: "gmail", Event: "email.received"}, Status: config.UnitStatusActive}
	require.NoError(t, ps.SaveUnit(ctx, unit))

	run := &models.Run{ID: store.NewID("run"), UnitID: unit.ID, EventID: "evt_1", UserID: "u", Status: config.RunStatusRunning}
	require.NoError(t, ps.SaveRun(ctx, run))

	// Same id upserts rather than duplicating.
	run.Step = 1
	require.NoError(t, ps.SaveRun(ctx, run))

	fetched, err := ps.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, 1, fetched.Step)
}

func TestPostgresStoreConnectionAutoDisable(t *testing.T) {
	ps := setupPostgresStore(t)
	ctx := context.Background()

	conn := &models.Connection{ID: store.NewID("conn"), UserID: "u", Provider: "gmail", ConnectionID: "ext_1", Enabled: true}
	require.NoError(t, ps.SaveConnection(ctx, conn))

	for i := 0; i < 11; i++ {
		require.NoError(t, ps.RecordPollResult(ctx, conn.ID, false, "boom"))
	}

	fetched, err := ps.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.False(t, fetched.Enabled, "connection must auto-disable after more than 10 consecutive failures")
	require.Equal(t, 11, fetched.ErrorCount)
}
