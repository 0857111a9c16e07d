package store

import (
	"context"
	"fmt"

	"github.com/pfemlab/pfemrun/internal/runner"
	"github.com/pfemlab/pfemrun/internal/sweep"
)

var _ sweep.Recorder = (*Store)(nil)

// BeginSweep inserts the sweep row. Uses ON CONFLICT(id) DO NOTHING so a
// retried begin is harmless.
func (s *Store) BeginSweep(ctx context.Context, agg *sweep.Aggregate) error {
	params, err := marshalParams(agg.Params)
	if err != nil {
		return fmt.Errorf("begin sweep: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sweeps
		(id, fingerprint, chapter, program, base_case, out_dir, params, total, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		agg.SweepID,
		agg.Fingerprint,
		agg.Chapter,
		agg.Program,
		agg.BaseCase,
		agg.OutDir,
		params,
		agg.Total,
		formatTime(agg.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("begin sweep: %w", err)
	}
	return nil
}

// RecordRun upserts one run and refreshes the sweep's counters in the same
// transaction, so the ledger matches the aggregate after every run.
func (s *Store) RecordRun(ctx context.Context, sweepID string, rec sweep.RunRecord) error {
	assignment, err := marshalAssignment(rec.Assignment)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	outputs, err := marshalOutputs(rec.Outputs)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	neq, sky := summaryColumns(rec.Summary)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweep_runs
		(sweep_id, idx, name, assignment, status, exit_code, outputs, equations, skyline_storage, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sweep_id, idx) DO UPDATE SET
			status = excluded.status,
			exit_code = excluded.exit_code,
			outputs = excluded.outputs,
			equations = excluded.equations,
			skyline_storage = excluded.skyline_storage,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`,
		sweepID,
		rec.Index,
		rec.Name,
		assignment,
		string(rec.Status),
		rec.ExitCode,
		outputs,
		neq,
		sky,
		rec.Error,
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sweeps SET
			succeeded = (SELECT COUNT(*) FROM sweep_runs WHERE sweep_id = ?1 AND status = 'succeeded'),
			failed    = (SELECT COUNT(*) FROM sweep_runs WHERE sweep_id = ?1 AND status IN ('failed', 'timeout')),
			skipped   = (SELECT COUNT(*) FROM sweep_runs WHERE sweep_id = ?1 AND status = 'skipped')
		WHERE id = ?1
	`, sweepID)
	if err != nil {
		return fmt.Errorf("record run counters: %w", err)
	}
	return tx.Commit()
}

// FinishSweep stores the final counters and completion time.
func (s *Store) FinishSweep(ctx context.Context, agg *sweep.Aggregate) error {
	complete := 0
	if agg.Complete {
		complete = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sweeps
		SET succeeded = ?, failed = ?, skipped = ?, complete = ?, finished_at = ?
		WHERE id = ?
	`,
		agg.Succeeded,
		agg.Failed,
		agg.Skipped,
		complete,
		formatTime(agg.FinishedAt),
		agg.SweepID,
	)
	if err != nil {
		return fmt.Errorf("finish sweep: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish sweep %s: %w", agg.SweepID, ErrNotFound)
	}
	return nil
}

// RecordCaseRun appends a single program run.
func (s *Store) RecordCaseRun(ctx context.Context, res *runner.RunResult) error {
	outputs, err := marshalOutputs(res.Outputs)
	if err != nil {
		return fmt.Errorf("record case run: %w", err)
	}
	neq, sky := summaryColumns(res.Summary)
	success := 0
	if res.Succeeded() {
		success = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO case_runs
		(chapter, program, basename, exit_code, success, outputs, equations, skyline_storage, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.Case.Chapter,
		res.Case.Program,
		res.Case.Basename,
		res.ExitCode,
		success,
		outputs,
		neq,
		sky,
		formatTime(res.StartedAt),
		formatTime(res.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record case run: %w", err)
	}
	return nil
}
