package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pfemlab/pfemrun/internal/runner"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SweepRow is a ledger entry for one sweep.
type SweepRow struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Chapter     string    `json:"chapter"`
	Program     string    `json:"program"`
	BaseCase    string    `json:"base_case"`
	OutDir      string    `json:"out_dir"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Complete    bool      `json:"complete"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RunRow is a ledger entry for one sweep run.
type RunRow struct {
	SweepID    string                `json:"sweep_id"`
	Index      int                   `json:"index"`
	Name       string                `json:"name"`
	Assignment map[string]string     `json:"assignment"`
	Status     string                `json:"status"`
	ExitCode   int                   `json:"exit_code"`
	Outputs    []string              `json:"outputs"`
	Summary    *runner.ResultSummary `json:"result_summary,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// CaseRunRow is a ledger entry for one single program run.
type CaseRunRow struct {
	Seq        int64                 `json:"seq"`
	Chapter    string                `json:"chapter"`
	Program    string                `json:"program"`
	Basename   string                `json:"basename"`
	ExitCode   int                   `json:"exit_code"`
	Success    bool                  `json:"success"`
	Outputs    []string              `json:"outputs"`
	Summary    *runner.ResultSummary `json:"result_summary,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// SweepFilter narrows ListSweeps. Zero fields match everything.
type SweepFilter struct {
	Program     string
	Fingerprint string
	Limit       int
}

// ListSweeps returns sweeps newest first.
//
// Query: ORDER BY started_at DESC, id DESC COLLATE BINARY
func (s *Store) ListSweeps(ctx context.Context, f SweepFilter) ([]SweepRow, error) {
	var where []string
	var args []any
	if f.Program != "" {
		where = append(where, "program = ?")
		args = append(args, f.Program)
	}
	if f.Fingerprint != "" {
		where = append(where, "fingerprint = ?")
		args = append(args, f.Fingerprint)
	}
	query := `
		SELECT id, fingerprint, chapter, program, base_case, out_dir,
		       total, succeeded, failed, skipped, complete, started_at, finished_at
		FROM sweeps`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC COLLATE BINARY"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	defer rows.Close()

	var out []SweepRow
	for rows.Next() {
		row, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("list sweeps: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetSweep returns one sweep by ID, or ErrNotFound.
func (s *Store) GetSweep(ctx context.Context, id string) (SweepRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, chapter, program, base_case, out_dir,
		       total, succeeded, failed, skipped, complete, started_at, finished_at
		FROM sweeps WHERE id = ?
	`, id)
	sw, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SweepRow{}, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SweepRow{}, fmt.Errorf("get sweep: %w", err)
	}
	return sw, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(sc scanner) (SweepRow, error) {
	var (
		row               SweepRow
		complete          int
		started, finished sql.NullString
	)
	err := sc.Scan(&row.ID, &row.Fingerprint, &row.Chapter, &row.Program, &row.BaseCase, &row.OutDir,
		&row.Total, &row.Succeeded, &row.Failed, &row.Skipped, &complete, &started, &finished)
	if err != nil {
		return SweepRow{}, err
	}
	row.Complete = complete != 0
	if row.StartedAt, err = parseTime(started); err != nil {
		return SweepRow{}, err
	}
	if row.FinishedAt, err = parseTime(finished); err != nil {
		return SweepRow{}, err
	}
	return row, nil
}

// SweepRuns returns the runs of a sweep in grid order.
//
// Query: ORDER BY idx ASC
func (s *Store) SweepRuns(ctx context.Context, sweepID string) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sweep_id, idx, name, assignment, status, exit_code, outputs, equations, skyline_storage, error
		FROM sweep_runs
		WHERE sweep_id = ?
		ORDER BY idx ASC
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("sweep runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var (
			r                   RunRow
			assignment, outputs string
			neq, sky            sql.NullInt64
		)
		if err := rows.Scan(&r.SweepID, &r.Index, &r.Name, &assignment, &r.Status, &r.ExitCode, &outputs, &neq, &sky, &r.Error); err != nil {
			return nil, fmt.Errorf("sweep runs: %w", err)
		}
		if err := unmarshalJSON("assignment", assignment, &r.Assignment); err != nil {
			return nil, err
		}
		if err := unmarshalJSON("outputs", outputs, &r.Outputs); err != nil {
			return nil, err
		}
		r.Summary = summaryFromColumns(neq, sky)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListCaseRuns returns single program runs newest first.
//
// Query: ORDER BY seq DESC
func (s *Store) ListCaseRuns(ctx context.Context, program string, limit int) ([]CaseRunRow, error) {
	query := `
		SELECT seq, chapter, program, basename, exit_code, success, outputs,
		       equations, skyline_storage, started_at, finished_at
		FROM case_runs`
	var args []any
	if program != "" {
		query += " WHERE program = ?"
		args = append(args, program)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list case runs: %w", err)
	}
	defer rows.Close()

	var out []CaseRunRow
	for rows.Next() {
		var (
			r                 CaseRunRow
			success           int
			outputs           string
			neq, sky          sql.NullInt64
			started, finished sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.Chapter, &r.Program, &r.Basename, &r.ExitCode, &success, &outputs,
			&neq, &sky, &started, &finished); err != nil {
			return nil, fmt.Errorf("list case runs: %w", err)
		}
		r.Success = success != 0
		if err := unmarshalJSON("outputs", outputs, &r.Outputs); err != nil {
			return nil, err
		}
		r.Summary = summaryFromColumns(neq, sky)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
