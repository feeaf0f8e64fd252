package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
)

// SaveUnit upserts a unit by id (spec.md §6.6: units.id is a text primary
// key generated by the caller, so create and update share one statement).
func (p *PostgresStore) SaveUnit(ctx context.Context, u *models.Unit) error {
	ifJSON, err := json.Marshal(u.If)
	if err != nil {
		return fmt.Errorf("marshal unit.if: %w", err)
	}
	thenJSON, err := json.Marshal(u.Then)
	if err != nil {
		return fmt.Errorf("marshal unit.then: %w", err)
	}
	whenJSON, err := json.Marshal(u.When)
	if err != nil {
		return fmt.Errorf("marshal unit.when: %w", err)
	}

	const q = `
		INSERT INTO units (
			id, owner_id, name, raw_when, raw_if, raw_then,
			compiled_when, compiled_if, compiled_then,
			status, trigger_source, trigger_event, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			owner_id       = EXCLUDED.owner_id,
			name           = EXCLUDED.name,
			raw_when       = EXCLUDED.raw_when,
			raw_if         = EXCLUDED.raw_if,
			raw_then       = EXCLUDED.raw_then,
			compiled_when  = EXCLUDED.compiled_when,
			compiled_if    = EXCLUDED.compiled_if,
			compiled_then  = EXCLUDED.compiled_then,
			status         = EXCLUDED.status,
			trigger_source = EXCLUDED.trigger_source,
			trigger_event  = EXCLUDED.trigger_event,
			updated_at     = now()
		RETURNING created_at, updated_at`

	var source, event sql.NullString
	if u.When.Type == config.TriggerTypeEvent {
		source = sql.NullString{String: u.When.Source, Valid: u.When.Source != ""}
		event = sql.NullString{String: u.When.Event, Valid: u.When.Event != ""}
	}

	row := p.db.QueryRowContext(ctx, q,
		u.ID, u.Owner, u.Name, u.Raw.When, u.Raw.If, u.Raw.Then,
		whenJSON, ifJSON, thenJSON, string(u.Status), source, event,
	)
	return row.Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetUnit fetches a single unit by id.
func (p *PostgresStore) GetUnit(ctx context.Context, id string) (*models.Unit, error) {
	const q = `
		SELECT id, owner_id, name, raw_when, raw_if, raw_then,
		       compiled_when, compiled_if, compiled_then,
		       status, created_at, updated_at
		FROM units WHERE id = $1`

	u, err := scanUnit(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnitNotFound
	}
	return u, err
}

// GetUnitsByTrigger returns active units whose when.source/event match,
// the query the Matcher runs for every ingested event (spec.md §4.5).
func (p *PostgresStore) GetUnitsByTrigger(ctx context.Context, source, event string) ([]*models.Unit, error) {
	const q = `
		SELECT id, owner_id, name, raw_when, raw_if, raw_then,
		       compiled_when, compiled_if, compiled_then,
		       status, created_at, updated_at
		FROM units
		WHERE trigger_source = $1 AND trigger_event = $2 AND status = $3`

	rows, err := p.db.QueryContext(ctx, q, source, event, string(config.UnitStatusActive))
	if err != nil {
		return nil, fmt.Errorf("query units by trigger: %w", err)
	}
	defer rows.Close()
	return scanUnits(rows)
}

// ListUnits returns every unit owned by owner, newest first.
func (p *PostgresStore) ListUnits(ctx context.Context, owner string) ([]*models.Unit, error) {
	const q = `
		SELECT id, owner_id, name, raw_when, raw_if, raw_then,
		       compiled_when, compiled_if, compiled_then,
		       status, created_at, updated_at
		FROM units WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()
	return scanUnits(rows)
}

// DeleteUnit removes a unit by id.
func (p *PostgresStore) DeleteUnit(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnitNotFound
	}
	return nil
}

// CountActiveUnits reports how many units currently have status=active,
// used by the metrics endpoint (spec.md §6.5).
func (p *PostgresStore) CountActiveUnits(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM units WHERE status = $1`, string(config.UnitStatusActive),
	).Scan(&n)
	return n, err
}

func scanUnit(row *sql.Row) (*models.Unit, error) {
	u := &models.Unit{}
	var whenJSON, ifJSON, thenJSON []byte
	var status string
	if err := row.Scan(
		&u.ID, &u.Owner, &u.Name, &u.Raw.When, &u.Raw.If, &u.Raw.Then,
		&whenJSON, &ifJSON, &thenJSON, &status, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalUnitJSON(u, status, whenJSON, ifJSON, thenJSON); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUnits(rows *sql.Rows) ([]*models.Unit, error) {
	var units []*models.Unit
	for rows.Next() {
		u := &models.Unit{}
		var whenJSON, ifJSON, thenJSON []byte
		var status string
		if err := rows.Scan(
			&u.ID, &u.Owner, &u.Name, &u.Raw.When, &u.Raw.If, &u.Raw.Then,
			&whenJSON, &ifJSON, &thenJSON, &status, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := unmarshalUnitJSON(u, status, whenJSON, ifJSON, thenJSON); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func unmarshalUnitJSON(u *models.Unit, status string, whenJSON, ifJSON, thenJSON []byte) error {
	u.Status = config.UnitStatus(status)
	if err := json.Unmarshal(whenJSON, &u.When); err != nil {
		return fmt.Errorf("unmarshal unit.when: %w", err)
	}
	if err := json.Unmarshal(ifJSON, &u.If); err != nil {
		return fmt.Errorf("unmarshal unit.if: %w", err)
	}
	if err := json.Unmarshal(thenJSON, &u.Then); err != nil {
		return fmt.Errorf("unmarshal unit.then: %w", err)
	}
	return nil
}
