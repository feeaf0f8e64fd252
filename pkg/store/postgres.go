package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the pgx-backed RelationalStore. It satisfies the
// RelationalStore interface defined in interfaces.go; the per-entity query
// methods live in postgres_units.go, postgres_runs.go, and
// postgres_connections.go.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against cfg, applies embedded
// migrations, and verifies connectivity before returning.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("relational store connected", "host", cfg.Host, "database", cfg.Database)
	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// NewPostgresStoreFromDB wraps an already-connected, already-migrated
// *sql.DB. Used by tests that need per-test schema isolation and therefore
// drive migration themselves (see postgres_test.go).
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// MigrationsFS exposes the embedded migration files for callers (tests)
// that need to run golang-migrate against a schema of their own choosing.
func MigrationsFS() embed.FS {
	return migrationsFS
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// PostgresHealth reports connectivity and pool saturation for the
// relational store.
type PostgresHealth struct {
	Healthy    bool
	OpenConns  int
	InUseConns int
	IdleConns  int
	Detail     string
}

// Health pings the database and reports pool stats, mirroring the
// teacher's database health-check shape.
func (p *PostgresStore) Health(ctx context.Context) PostgresHealth {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.db.PingContext(pingCtx); err != nil {
		return PostgresHealth{Healthy: false, Detail: err.Error()}
	}

	stats := p.db.Stats()
	return PostgresHealth{
		Healthy:    true,
		OpenConns:  stats.OpenConnections,
		InUseConns: stats.InUse,
		IdleConns:  stats.Idle,
	}
}

// Ping implements RelationalStore's reachability check for the health
// endpoint.
func (p *PostgresStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return p.db.PingContext(pingCtx)
}
