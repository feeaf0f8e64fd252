package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cortexrun/cortex/pkg/models"
)

// SaveConnection upserts a connection keyed on (user_id, provider) — the
// constraint spec.md §6.6 calls load-bearing — so re-registering an
// already-connected provider reuses its row and id instead of erroring on
// the unique violation. c.ID is only honored on first insert; c.ID is
// updated in place to the existing row's id on conflict.
func (p *PostgresStore) SaveConnection(ctx context.Context, c *models.Connection) error {
	const q = `
		INSERT INTO connections (id, user_id, provider, connection_id, enabled, last_poll_at, error_count, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			connection_id = EXCLUDED.connection_id,
			enabled       = EXCLUDED.enabled,
			last_poll_at  = EXCLUDED.last_poll_at,
			error_count   = EXCLUDED.error_count,
			last_error    = EXCLUDED.last_error
		RETURNING id, created_at`

	return p.db.QueryRowContext(ctx, q,
		c.ID, c.UserID, c.Provider, c.ConnectionID, c.Enabled, c.LastPollAt, c.ErrorCount, nullString(c.LastError),
	).Scan(&c.ID, &c.CreatedAt)
}

// GetConnection fetches a single connection by id.
func (p *PostgresStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	const q = `
		SELECT id, user_id, provider, connection_id, enabled, last_poll_at, error_count, last_error, created_at
		FROM connections WHERE id = $1`

	c, err := scanConnection(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConnectionNotFound
	}
	return c, err
}

// ListConnections returns every connection belonging to userID.
func (p *PostgresStore) ListConnections(ctx context.Context, userID string) ([]*models.Connection, error) {
	const q = `
		SELECT id, user_id, provider, connection_id, enabled, last_poll_at, error_count, last_error, created_at
		FROM connections WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := p.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ListEnabledConnections returns every enabled connection across all
// users, the set the Poller iterates each tick (spec.md §4.3).
func (p *PostgresStore) ListEnabledConnections(ctx context.Context) ([]*models.Connection, error) {
	const q = `
		SELECT id, user_id, provider, connection_id, enabled, last_poll_at, error_count, last_error, created_at
		FROM connections WHERE enabled = true ORDER BY id ASC`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list enabled connections: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// RecordPollResult updates a connection's poll bookkeeping: on success it
// resets error_count and stamps last_poll_at; on failure it increments
// error_count and records the error, auto-disabling after more than 10
// consecutive failures (spec.md §4.3, §7, scenario S5).
func (p *PostgresStore) RecordPollResult(ctx context.Context, id string, success bool, errMsg string) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE connections SET last_poll_at = now(), error_count = 0, last_error = NULL
			WHERE id = $1`, id,
		)
		return err
	}

	_, err := p.db.ExecContext(ctx, `
		UPDATE connections SET
			error_count = error_count + 1,
			last_error  = $2,
			enabled     = CASE WHEN error_count + 1 > 10 THEN false ELSE enabled END
		WHERE id = $1`, id, errMsg,
	)
	return err
}

// SetConnectionEnabled toggles a connection's enabled flag, used by the
// manual re-enable endpoint after auto-disable (spec.md §6.2, scenario S5).
func (p *PostgresStore) SetConnectionEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE connections SET enabled = $2, error_count = CASE WHEN $2 THEN 0 ELSE error_count END
		WHERE id = $1`, id, enabled,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// CountEnabledConnections reports how many connections are enabled, used
// by the metrics endpoint (spec.md §6.5).
func (p *PostgresStore) CountEnabledConnections(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM connections WHERE enabled = true`).Scan(&n)
	return n, err
}

func scanConnection(row scannable) (*models.Connection, error) {
	c := &models.Connection{}
	var lastErr sql.NullString
	if err := row.Scan(
		&c.ID, &c.UserID, &c.Provider, &c.ConnectionID, &c.Enabled,
		&c.LastPollAt, &c.ErrorCount, &lastErr, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.LastError = lastErr.String
	return c, nil
}

func scanConnections(rows *sql.Rows) ([]*models.Connection, error) {
	var conns []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}
