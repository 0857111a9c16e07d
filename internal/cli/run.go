package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfemlab/pfemrun/internal/link"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Rebuild  bool
	NoLedger bool
}

// RunSummary is the result of a single run.
type RunSummary struct {
	Case       runner.Case           `json:"case"`
	Executable string                `json:"executable"`
	Success    bool                  `json:"success"`
	ExitCode   int                   `json:"exit_code"`
	TimedOut   bool                  `json:"timed_out,omitempty"`
	Outputs    []string              `json:"outputs"`
	Summary    *runner.ResultSummary `json:"result_summary,omitempty"`
	Error      string                `json:"error,omitempty"`
	Output     string                `json:"output,omitempty"`
}

// WriteText implements textWriter.
func (s *RunSummary) WriteText(w io.Writer) {
	status := "ok"
	if !s.Success {
		status = "FAILED (" + s.Error + ")"
	}
	fmt.Fprintf(w, "%s/%s %s: %s\n", s.Case.Chapter, s.Case.Program, s.Case.Basename, status)
	if len(s.Outputs) > 0 {
		fmt.Fprintf(w, "outputs: %s\n", strings.Join(s.Outputs, " "))
	}
	if s.Summary != nil {
		fmt.Fprintf(w, "equations: %d  skyline storage: %d\n", s.Summary.Equations, s.Summary.SkylineStorage)
	}
	if !s.Success && s.Output != "" {
		fmt.Fprintln(w, strings.TrimRight(s.Output, "\n"))
	}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <chapter> <program> <case>",
		Short: "Run a program against one input case",
		Long: `Run a chapter program against one input case.

The library is built when its archive is missing, the program is linked
when its executable is missing or stale, and the program is run in the
chapter's case directory. The run succeeds when the program exits zero and
writes at least one output file named after the case.

Example:
  pfemrun run chap05 p51 p51_1
  pfemrun run --rebuild --format json chap05 p51 p51_1`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCase(cmd, opts, args[0], args[1], args[2])
		},
	}

	cmd.Flags().BoolVar(&opts.Rebuild, "rebuild", false, "rebuild the library and relink before running")
	cmd.Flags().BoolVar(&opts.NoLedger, "no-ledger", false, "do not record the run in the ledger")

	return cmd
}

func runCase(cmd *cobra.Command, opts *RunOptions, chapter, program, basename string) error {
	e, err := loadEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd, e.logger)
	defer stop()

	if _, err := modgraph.NewBuilder(e.cfg, e.toolchain, e.logger).Build(ctx, opts.Rebuild); err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "library build failed", err)
	}
	linked, err := link.New(e.cfg, e.toolchain, e.logger).Link(ctx, chapter, program, opts.Rebuild)
	if err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "link failed", err)
	}

	r, err := runner.New(e.cfg, e.logger)
	if err != nil {
		return e.fail(ExitCommandError, CodeConfig, "invalid run settings", err)
	}
	workDir := e.cfg.CaseWorkDir(chapter)
	kase := runner.Case{
		Chapter:   chapter,
		Program:   program,
		Basename:  basename,
		InputPath: r.InputPath(workDir, basename),
	}
	res, err := r.Run(ctx, runner.Invocation{
		Executable: linked.Executable,
		WorkDir:    workDir,
		Basename:   basename,
		Case:       kase,
	})
	if err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "run failed to start", err)
	}

	e.recordCaseRun(ctx, opts.NoLedger, res)

	summary := &RunSummary{
		Case:       kase,
		Executable: linked.Executable,
		Success:    res.Succeeded(),
		ExitCode:   res.ExitCode,
		TimedOut:   res.TimedOut,
		Outputs:    res.Outputs,
		Summary:    res.Summary,
		Error:      res.Failure(),
	}
	if !summary.Success {
		summary.Output = res.Output
	}
	if err := e.out.Success(summary); err != nil {
		return err
	}
	if !summary.Success {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s failed: %s", basename, summary.Error))
	}
	return nil
}
