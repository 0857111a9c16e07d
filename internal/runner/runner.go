// Package runner executes a built program against one named input case.
//
// The program runs with the case directory as its working directory and is
// handed the case basename through a Protocol. A non-zero exit is part of
// the RunResult; only a missing executable or input file, or a cancelled
// context, is returned as an error.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pfemlab/pfemrun/internal/config"
)

// Case identifies one program input.
type Case struct {
	Chapter   string `json:"chapter" yaml:"chapter"`
	Program   string `json:"program" yaml:"program"`
	Basename  string `json:"basename" yaml:"basename"`
	InputPath string `json:"input" yaml:"input"`
}

// Invocation is a single program run.
type Invocation struct {
	Executable string
	WorkDir    string
	Basename   string
	Case       Case // reporting only
}

// RunResult is the outcome of one invocation. It is not modified after Run
// returns.
type RunResult struct {
	Case       Case
	ExitCode   int
	Output     string
	Outputs    []string
	StartedAt  time.Time
	FinishedAt time.Time
	TimedOut   bool
	Summary    *ResultSummary
}

// Succeeded reports a zero exit status with at least one output file.
func (r *RunResult) Succeeded() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0 && len(r.Outputs) > 0
}

// Failure describes why a run did not succeed, or "" when it did.
func (r *RunResult) Failure() string {
	switch {
	case r.Succeeded():
		return ""
	case r.TimedOut:
		return "timed out"
	case r.ExitCode != 0:
		return fmt.Sprintf("exit status %d", r.ExitCode)
	default:
		return "no output files produced"
	}
}

// PreconditionError reports a path that must exist before spawning.
type PreconditionError struct {
	What string
	Path string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Path)
}

// Runner spawns programs.
type Runner struct {
	Protocol   Protocol
	InputExt   string
	OutputExts []string
	Timeout    time.Duration // zero disables the timeout
	Now        func() time.Time
	Logger     *slog.Logger
}

// New creates a Runner from the run settings in cfg.
func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	p, err := ProtocolByName(cfg.Run.Protocol)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Protocol:   p,
		InputExt:   cfg.InputExt,
		OutputExts: cfg.OutputExts,
		Timeout:    cfg.Run.Timeout,
		Now:        time.Now,
		Logger:     logger,
	}, nil
}

// InputPath is the input file a run of basename in dir reads.
func (r *Runner) InputPath(dir, basename string) string {
	return filepath.Join(dir, basename+r.InputExt)
}

// Run executes inv and waits for it to finish.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*RunResult, error) {
	if info, err := os.Stat(inv.Executable); err != nil || info.IsDir() {
		return nil, &PreconditionError{What: "executable", Path: inv.Executable}
	}
	input := r.InputPath(inv.WorkDir, inv.Basename)
	if _, err := os.Stat(input); err != nil {
		return nil, &PreconditionError{What: "input file", Path: input}
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.Command(inv.Executable)
	cmd.Dir = inv.WorkDir
	cmd.Env = os.Environ()
	cmd.Stdout = &out
	cmd.Stderr = &out
	r.protocol().Prepare(cmd, inv.Basename)
	setProcessGroup(cmd)

	res := &RunResult{Case: inv.Case, StartedAt: r.now()}
	if res.Case.Basename == "" {
		res.Case.Basename = inv.Basename
		res.Case.InputPath = input
	}
	r.logger().Debug("starting program", "executable", inv.Executable, "case", inv.Basename, "dir", inv.WorkDir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", inv.Executable, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-done
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s cancelled: %w", inv.Basename, ctx.Err())
		}
		res.TimedOut = true
		res.ExitCode = -1
		r.logger().Warn("program timed out", "case", inv.Basename, "timeout", r.Timeout)
	case waitErr = <-done:
	}
	res.FinishedAt = r.now()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait %s: %w", inv.Executable, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Output = out.String()
	res.Outputs = DiscoverOutputs(inv.WorkDir, inv.Basename, r.OutputExts)

	for _, p := range res.Outputs {
		if filepath.Ext(p) != ".res" {
			continue
		}
		sum, err := ParseResultSummary(p)
		if err != nil {
			r.logger().Warn("cannot read results header", "path", p, "error", err)
		}
		res.Summary = sum
	}

	r.logger().Debug("program finished", "case", inv.Basename, "exit_code", res.ExitCode, "outputs", len(res.Outputs))
	return res, nil
}

func (r *Runner) protocol() Protocol {
	if r.Protocol == nil {
		return StdinProtocol{}
	}
	return r.Protocol
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
