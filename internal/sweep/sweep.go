// Package sweep runs a program once per point of a parameter grid.
//
// Each grid point mutates the base input in its own run directory, runs the
// case there and records the outcome. A failing point is recorded and the
// sweep moves on. Runs execute on a bounded worker pool; a single aggregator
// owns the summary and rewrites it atomically after every completion.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pfemlab/pfemrun/internal/fsutil"
	"github.com/pfemlab/pfemrun/internal/inputrec"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// CaseRunner runs one case.
type CaseRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (*runner.RunResult, error)
}

// Recorder persists sweeps outside the output directory.
type Recorder interface {
	BeginSweep(ctx context.Context, agg *Aggregate) error
	RecordRun(ctx context.Context, sweepID string, rec RunRecord) error
	FinishSweep(ctx context.Context, agg *Aggregate) error
}

// Request describes one sweep.
type Request struct {
	Base       runner.Case // base case; InputPath is read, never written
	Executable string
	Grid       Grid
	OutDir     string
}

// Scheduler executes sweeps.
type Scheduler struct {
	Runner   CaseRunner
	Workers  int
	InputExt string
	Recorder Recorder // optional
	IDs      IDGenerator
	Now      func() time.Time
	Logger   *slog.Logger
}

// Run executes every grid point of req. It returns an error only when the
// sweep cannot start; per-run failures are in the aggregate. Cancelling
// ctx stops new runs from starting and lets in-flight runs finish.
func (s *Scheduler) Run(ctx context.Context, req Request) (*Aggregate, error) {
	s.defaults()
	if err := req.Grid.Validate(); err != nil {
		return nil, err
	}
	base, err := os.ReadFile(req.Base.InputPath)
	if err != nil {
		return nil, fmt.Errorf("base input not found: %s", req.Base.InputPath)
	}
	fp, err := Fingerprint(base, req.Grid)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sweep directory: %w", err)
	}

	assignments := req.Grid.Expand()
	agg := &Aggregate{
		SweepID:     s.IDs.Generate(),
		Fingerprint: fp,
		Chapter:     req.Base.Chapter,
		Program:     req.Base.Program,
		BaseCase:    req.Base.Basename,
		BaseInput:   req.Base.InputPath,
		OutDir:      req.OutDir,
		Params:      req.Grid.Params,
		Total:       len(assignments),
		Runs:        []RunRecord{},
		StartedAt:   s.Now().UTC(),
	}
	aggPath := filepath.Join(req.OutDir, AggregateFile)
	if err := agg.write(aggPath); err != nil {
		return nil, err
	}
	if s.Recorder != nil {
		if err := s.Recorder.BeginSweep(ctx, agg); err != nil {
			return nil, fmt.Errorf("record sweep: %w", err)
		}
	}
	s.Logger.Info("sweep started", "sweep_id", agg.SweepID, "runs", agg.Total, "workers", s.Workers)

	results := make(chan RunRecord, s.Workers)
	aggDone := make(chan error, 1)
	go func() {
		var firstErr error
		for rec := range results {
			agg.add(rec)
			if err := agg.write(aggPath); err != nil && firstErr == nil {
				firstErr = err
			}
			if s.Recorder != nil {
				if err := s.Recorder.RecordRun(context.WithoutCancel(ctx), agg.SweepID, rec); err != nil {
					s.Logger.Warn("ledger write failed", "run", rec.Name, "error", err)
				}
			}
			s.Logger.Debug("run finished", "run", rec.Name, "status", rec.Status)
		}
		aggDone <- firstErr
	}()

	var g errgroup.Group
	g.SetLimit(s.Workers)
	for _, a := range assignments {
		name := RunName(req.Base.Basename, a.Index, agg.Total)
		if ctx.Err() != nil {
			results <- s.skipped(a, name, req.OutDir)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results <- s.skipped(a, name, req.OutDir)
				return nil
			}
			results <- s.runOne(ctx, req, base, a, name)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	writeErr := <-aggDone

	agg.Complete = ctx.Err() == nil
	agg.FinishedAt = s.Now().UTC()
	if err := agg.write(aggPath); err != nil && writeErr == nil {
		writeErr = err
	}
	if s.Recorder != nil {
		if err := s.Recorder.FinishSweep(context.WithoutCancel(ctx), agg); err != nil {
			s.Logger.Warn("ledger write failed", "sweep_id", agg.SweepID, "error", err)
		}
	}
	s.Logger.Info("sweep finished", "sweep_id", agg.SweepID,
		"succeeded", agg.Succeeded, "failed", agg.Failed, "skipped", agg.Skipped)
	if writeErr != nil {
		return agg, fmt.Errorf("write sweep summary: %w", writeErr)
	}
	return agg, nil
}

func (s *Scheduler) defaults() {
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.IDs == nil {
		s.IDs = UUIDv7Generator{}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.InputExt == "" {
		s.InputExt = ".dat"
	}
}

func (s *Scheduler) skipped(a Assignment, name, outDir string) RunRecord {
	return RunRecord{
		Index:      a.Index,
		Name:       name,
		Assignment: a.Values(),
		Dir:        filepath.Join(outDir, name),
		Status:     StatusSkipped,
		ExitCode:   -1,
		Error:      "sweep cancelled before run started",
	}
}

// runOne owns <out>/<name> exclusively. The run is detached from ctx so a
// cancelled sweep lets it finish; the runner's own timeout still applies.
func (s *Scheduler) runOne(ctx context.Context, req Request, base []byte, a Assignment, name string) RunRecord {
	dir := filepath.Join(req.OutDir, name)
	rec := RunRecord{
		Index:      a.Index,
		Name:       name,
		Assignment: a.Values(),
		Dir:        dir,
		ExitCode:   -1,
		StartedAt:  s.Now().UTC(),
	}
	fail := func(err error) RunRecord {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		rec.FinishedAt = s.Now().UTC()
		s.Logger.Warn("sweep run failed", "run", name, "error", err)
		return rec
	}

	input := inputrec.Parse(base)
	for _, b := range a.Bindings {
		if err := input.Set(b.Path, b.Value); err != nil {
			return fail(fmt.Errorf("parameter %s: %w", b.Name, err))
		}
	}

	work := filepath.Join(dir, ".work")
	if err := os.RemoveAll(dir); err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(work, 0o755); err != nil {
		return fail(err)
	}
	defer os.RemoveAll(work)

	inputPath := filepath.Join(work, name+s.InputExt)
	if err := os.WriteFile(inputPath, input.Bytes(), 0o644); err != nil {
		return fail(fmt.Errorf("write input: %w", err))
	}

	res, err := s.Runner.Run(context.WithoutCancel(ctx), runner.Invocation{
		Executable: req.Executable,
		WorkDir:    work,
		Basename:   name,
		Case: runner.Case{
			Chapter:   req.Base.Chapter,
			Program:   req.Base.Program,
			Basename:  name,
			InputPath: inputPath,
		},
	})
	if err != nil {
		return fail(err)
	}

	copied, err := fsutil.CopyInto(dir, append([]string{inputPath}, res.Outputs...)...)
	if err != nil {
		return fail(fmt.Errorf("copy outputs: %w", err))
	}
	for _, p := range copied[1:] {
		rec.Outputs = append(rec.Outputs, filepath.Base(p))
	}
	rec.ExitCode = res.ExitCode
	rec.Summary = res.Summary
	rec.FinishedAt = s.Now().UTC()

	switch {
	case res.TimedOut:
		rec.Status = StatusTimeout
		rec.Error = res.Failure()
	case res.Succeeded():
		rec.Status = StatusSucceeded
		rec.Success = true
	default:
		rec.Status = StatusFailed
		rec.Error = res.Failure()
	}
	if !rec.Success {
		s.Logger.Warn("sweep run failed", "run", name, "reason", rec.Error)
	}
	return rec
}
