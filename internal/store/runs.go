package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/personimport/internal/core"
)

var _ core.RunStore = (*Store)(nil)

const runColumns = `id::text, session_id, file_name, total_rows,
	processed, created, updated, skipped, invites_created, errors,
	ip_address, user_agent, confirmed_at`

// RecordRun inserts a confirmed import. ID and ConfirmedAt are filled in
// when empty.
func (s *Store) RecordRun(ctx context.Context, run core.ImportRun) (*core.ImportRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.ConfirmedAt.IsZero() {
		run.ConfirmedAt = time.Now().UTC()
	}
	if run.Rows == nil {
		run.Rows = []core.ConfirmRowResult{}
	}

	rowsJSON, err := json.Marshal(run.Rows)
	if err != nil {
		return nil, fmt.Errorf("marshal row results: %w", err)
	}

	sum := run.Summary
	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_runs (
			id, session_id, file_name, total_rows,
			processed, created, updated, skipped, invites_created, errors,
			row_results, ip_address, user_agent, confirmed_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.SessionID, run.FileName, run.TotalRows,
		sum.Processed, sum.Created, sum.Updated, sum.Skipped, sum.InvitesCreated, sum.Errors,
		rowsJSON, run.IPAddress, run.UserAgent, run.ConfirmedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return &run, nil
}

// GetRun returns a run with its per-row results.
func (s *Store) GetRun(ctx context.Context, id string) (*core.ImportRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrRunNotFound
	}

	var rowsJSON []byte
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+`, row_results FROM import_runs WHERE id = $1::uuid`, id)

	run, err := scanRun(row, &rowsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := json.Unmarshal(rowsJSON, &run.Rows); err != nil {
		return nil, fmt.Errorf("unmarshal row results: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs without their per-row results.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM import_runs ORDER BY confirmed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []core.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// PurgeRuns deletes runs confirmed before the cutoff.
func (s *Store) PurgeRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_runs WHERE confirmed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row, extra ...any) (*core.ImportRun, error) {
	var run core.ImportRun
	dest := []any{
		&run.ID, &run.SessionID, &run.FileName, &run.TotalRows,
		&run.Summary.Processed, &run.Summary.Created, &run.Summary.Updated,
		&run.Summary.Skipped, &run.Summary.InvitesCreated, &run.Summary.Errors,
		&run.IPAddress, &run.UserAgent, &run.ConfirmedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &run, nil
}
