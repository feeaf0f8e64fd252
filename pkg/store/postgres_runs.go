package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
)

const pgUniqueViolation = "23505"

// SaveRun upserts a run by id. The (unit_id, event_id) uniqueness
// constraint (spec.md §6.6) is what actually enforces at-most-once
// execution per (unit, event); the upsert here lets the Runtime persist
// progress across steps of the same run without a separate update path.
func (p *PostgresStore) SaveRun(ctx context.Context, run *models.Run) error {
	ctxJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("marshal run.context: %w", err)
	}

	var origJSON []byte
	if run.OriginalEventPayload != nil {
		origJSON, err = json.Marshal(run.OriginalEventPayload)
		if err != nil {
			return fmt.Errorf("marshal run.original_event_payload: %w", err)
		}
	}

	const q = `
		INSERT INTO runs (
			id, unit_id, event_id, user_id, status, current_step,
			context, started_at, completed_at, resume_at, error, original_event_payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status       = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			context      = EXCLUDED.context,
			completed_at = EXCLUDED.completed_at,
			resume_at    = EXCLUDED.resume_at,
			error        = EXCLUDED.error
		RETURNING started_at`

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	row := p.db.QueryRowContext(ctx, q,
		run.ID, run.UnitID, run.EventID, run.UserID, string(run.Status), run.Step,
		ctxJSON, startedAt, run.CompletedAt, run.ResumeAt, nullString(run.Error), origJSON,
	)
	if err := row.Scan(&run.StartedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run already exists for unit/event: %w", err)
		}
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun fetches a single run by id.
func (p *PostgresStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	const q = `
		SELECT id, unit_id, event_id, user_id, status, current_step,
		       context, started_at, completed_at, resume_at, error, original_event_payload
		FROM runs WHERE id = $1`

	run, err := scanRun(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns runs matching filters, most recently started first.
func (p *PostgresStore) ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error) {
	q := `
		SELECT id, unit_id, event_id, user_id, status, current_step,
		       context, started_at, completed_at, resume_at, error, original_event_payload
		FROM runs WHERE 1=1`
	args := []any{}

	if filters.UnitID != "" {
		args = append(args, filters.UnitID)
		q += fmt.Sprintf(" AND unit_id = $%d", len(args))
	}
	if filters.UserID != "" {
		args = append(args, filters.UserID)
		q += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	q += " ORDER BY started_at DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))

	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRunsSince reports how many runs started at or after since, used by
// the metrics endpoint's runs_last_hour figure (spec.md §6.5).
func (p *PostgresStore) CountRunsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM runs WHERE started_at >= $1`, since,
	).Scan(&n)
	return n, err
}

// CancelRunsForUnit marks every non-terminal run of unitID as cancelled,
// used when a unit is disabled or deleted (spec.md §4.4).
func (p *PostgresStore) CancelRunsForUnit(ctx context.Context, unitID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE runs SET status = $1, completed_at = now()
		WHERE unit_id = $2 AND status IN ($3, $4, $5)`,
		string(config.RunStatusCancelled), unitID,
		string(config.RunStatusPending), string(config.RunStatusRunning), string(config.RunStatusWaiting),
	)
	return err
}

// LogRunStep upserts a RunStep audit row keyed by (run_id, step_index).
func (p *PostgresStore) LogRunStep(ctx context.Context, step *models.RunStep) error {
	configJSON, err := json.Marshal(step.ActionConfig)
	if err != nil {
		return fmt.Errorf("marshal step.action_config: %w", err)
	}
	var resultJSON []byte
	if step.Result != nil {
		resultJSON, err = json.Marshal(step.Result)
		if err != nil {
			return fmt.Errorf("marshal step.result: %w", err)
		}
	}

	const q = `
		INSERT INTO run_steps (
			run_id, step_index, action_type, action_config, status, result, error, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, step_index) DO UPDATE SET
			status       = EXCLUDED.status,
			result       = EXCLUDED.result,
			error        = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`

	startedAt := step.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	_, err = p.db.ExecContext(ctx, q,
		step.RunID, step.StepIndex, string(step.ActionConfig.Type), configJSON,
		string(step.Status), resultJSON, nullString(step.Error), startedAt, step.CompletedAt,
	)
	return err
}

// ListRunSteps returns the full audit trail for a run, in step order.
func (p *PostgresStore) ListRunSteps(ctx context.Context, runID string) ([]*models.RunStep, error) {
	const q = `
		SELECT run_id, step_index, action_type, action_config, status, result, error, started_at, completed_at
		FROM run_steps WHERE run_id = $1 ORDER BY step_index ASC`

	rows, err := p.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.RunStep
	for rows.Next() {
		s := &models.RunStep{}
		var actionType, status string
		var actionConfigJSON, resultJSON []byte
		var errStr sql.NullString
		if err := rows.Scan(
			&s.RunID, &s.StepIndex, &actionType, &actionConfigJSON, &status, &resultJSON, &errStr,
			&s.StartedAt, &s.CompletedAt,
		); err != nil {
			return nil, err
		}
		s.Status = config.RunStepStatus(status)
		s.Error = errStr.String
		if err := json.Unmarshal(actionConfigJSON, &s.ActionConfig); err != nil {
			return nil, fmt.Errorf("unmarshal step.action_config: %w", err)
		}
		if len(resultJSON) > 0 {
			if err := json.Unmarshal(resultJSON, &s.Result); err != nil {
				return nil, fmt.Errorf("unmarshal step.result: %w", err)
			}
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*models.Run, error) {
	return scanRunRow(row)
}

func scanRunRow(row scannable) (*models.Run, error) {
	run := &models.Run{}
	var status string
	var ctxJSON, origJSON []byte
	var errStr sql.NullString

	if err := row.Scan(
		&run.ID, &run.UnitID, &run.EventID, &run.UserID, &status, &run.Step,
		&ctxJSON, &run.StartedAt, &run.CompletedAt, &run.ResumeAt, &errStr, &origJSON,
	); err != nil {
		return nil, err
	}

	run.Status = config.RunStatus(status)
	run.Error = errStr.String
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &run.Context); err != nil {
			return nil, fmt.Errorf("unmarshal run.context: %w", err)
		}
	}
	if len(origJSON) > 0 {
		if err := json.Unmarshal(origJSON, &run.OriginalEventPayload); err != nil {
			return nil, fmt.Errorf("unmarshal run.original_event_payload: %w", err)
		}
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
