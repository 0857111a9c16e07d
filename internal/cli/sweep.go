package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfemlab/pfemrun/internal/bundle"
	"github.com/pfemlab/pfemrun/internal/inputrec"
	"github.com/pfemlab/pfemrun/internal/link"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/runner"
	"github.com/pfemlab/pfemrun/internal/sweep"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Params   []string
	GridFile string
	OutDir   string
	Workers  int
	Rebuild  bool
	NoLedger bool

	// IDs overrides the sweep ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs sweep.IDGenerator
}

// SweepSummary is the result of the sweep command.
type SweepSummary struct {
	SweepID     string            `json:"sweep_id"`
	Fingerprint string            `json:"fingerprint"`
	OutDir      string            `json:"out_dir"`
	Aggregate   string            `json:"aggregate"`
	Total       int               `json:"total"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	Complete    bool              `json:"complete"`
	FailedRuns  []sweep.RunRecord `json:"failed_runs"`
}

// WriteText implements textWriter.
func (s *SweepSummary) WriteText(w io.Writer) {
	fmt.Fprintf(w, "sweep %s: %d runs, %d succeeded, %d failed, %d skipped\n",
		s.SweepID, s.Total, s.Succeeded, s.Failed, s.Skipped)
	fmt.Fprintf(w, "results: %s\n", s.Aggregate)
	for _, r := range s.FailedRuns {
		fmt.Fprintf(w, "  %s %s: %s\n", r.Name, formatAssignment(r.Assignment), r.Error)
	}
	if !s.Complete {
		fmt.Fprintln(w, "sweep interrupted before all runs started")
	}
}

func formatAssignment(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + values[k]
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return newSweepCommand(&SweepOptions{RootOptions: rootOpts})
}

func newSweepCommand(opts *SweepOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep <chapter> <program> <base-case>",
		Short: "Run a program over a parameter grid",
		Long: `Run a program once for every combination of parameter values.

Each parameter names a field of the base input file, addressed as rN.fM
(field M of the Nth non-blank line) or through the field names configured
for the program. Every run gets its own modified copy of the base input and
its own directory under the output root. Results are summarised in
sweep.json, which is rewritten after every finished run.

Example:
  pfemrun sweep chap05 p51 p51_1 --param E=r2.f1:1e5,1e6 --param nu=r2.f2:0.2,0.3
  pfemrun sweep chap05 p51 p51_1 --grid grid.yaml --workers 8`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter as name=[rN.fM:]v1,v2 (repeatable)")
	cmd.Flags().StringVar(&opts.GridFile, "grid", "", "YAML grid file")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "output directory (default <sweep_dir>/<base-case>)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "j", 0, "concurrent runs (default from configuration)")
	cmd.Flags().BoolVar(&opts.Rebuild, "rebuild", false, "rebuild the library and relink before sweeping")
	cmd.Flags().BoolVar(&opts.NoLedger, "no-ledger", false, "do not record the sweep in the ledger")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions, chapter, program, basename string) error {
	e, err := loadEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}

	linker := link.New(e.cfg, e.toolchain, e.logger)
	grid, err := loadSweepGrid(opts, e.fieldResolver(linker, chapter, program))
	if err != nil {
		return e.fail(ExitCommandError, CodeConfig, "invalid parameter grid", err)
	}

	ctx, stop := signalContext(cmd, e.logger)
	defer stop()

	if _, err := modgraph.NewBuilder(e.cfg, e.toolchain, e.logger).Build(ctx, opts.Rebuild); err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "library build failed", err)
	}
	linked, err := linker.Link(ctx, chapter, program, opts.Rebuild)
	if err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "link failed", err)
	}
	r, err := runner.New(e.cfg, e.logger)
	if err != nil {
		return e.fail(ExitCommandError, CodeConfig, "invalid run settings", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = e.cfg.Sweep.Workers
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Join(e.cfg.SweepPath(), basename)
	} else if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}

	ledger, err := e.openLedger(opts.NoLedger)
	if err != nil {
		e.logger.Warn("ledger unavailable, sweep not recorded", "error", err)
		ledger = nil
	}
	defer e.closeLedger(ledger)

	ids := opts.IDs
	if ids == nil {
		ids = sweep.UUIDv7Generator{}
	}
	sched := &sweep.Scheduler{
		Runner:   r,
		Workers:  workers,
		InputExt: e.cfg.InputExt,
		IDs:      ids,
		Logger:   e.logger,
	}
	if ledger != nil {
		sched.Recorder = ledger
	}

	agg, err := sched.Run(ctx, sweep.Request{
		Base: runner.Case{
			Chapter:   chapter,
			Program:   program,
			Basename:  basename,
			InputPath: r.InputPath(e.cfg.CaseWorkDir(chapter), basename),
		},
		Executable: linked.Executable,
		Grid:       grid,
		OutDir:     outDir,
	})
	if agg == nil {
		return e.fail(ExitCommandError, CodeConfig, "sweep could not start", err)
	}
	if err != nil {
		e.logger.Error("sweep summary incomplete", "error", err)
	}

	summary := &SweepSummary{
		SweepID:     agg.SweepID,
		Fingerprint: agg.Fingerprint,
		OutDir:      agg.OutDir,
		Aggregate:   filepath.Join(agg.OutDir, sweep.AggregateFile),
		Total:       agg.Total,
		Succeeded:   agg.Succeeded,
		Failed:      agg.Failed,
		Skipped:     agg.Skipped,
		Complete:    agg.Complete,
		FailedRuns:  agg.FailedRuns(),
	}
	if err := e.out.Success(summary); err != nil {
		return err
	}
	if !agg.Complete {
		return NewExitError(ExitFailure, "sweep interrupted")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write sweep summary", err)
	}
	return nil
}

// loadSweepGrid merges the grid file, if any, with --param flags. Flags
// follow the file's parameters in grid order.
// fieldResolver resolves a parameter name to a field path, first from the
// configured programs.<p>.fields and then from the variables the program
// source reads. The source is scanned at most once.
func (e *env) fieldResolver(linker *link.Linker, chapter, program string) sweep.PathResolver {
	var fromSource map[string]inputrec.FieldPath
	loaded := false
	return func(name string) (string, bool) {
		if p, ok := e.cfg.FieldPath(program, name); ok {
			return p, true
		}
		if !loaded {
			loaded = true
			fromSource = e.sourceFieldPaths(linker, chapter, program)
		}
		p, ok := fromSource[strings.ToLower(name)]
		if !ok {
			return "", false
		}
		return p.String(), true
	}
}

func (e *env) sourceFieldPaths(linker *link.Linker, chapter, program string) map[string]inputrec.FieldPath {
	source, err := linker.EntrySource(chapter, program)
	if err != nil {
		return nil
	}
	schema, err := bundle.LoadSchema(program, source, e.cfg.Bundle.ReadMarker, 0)
	if err != nil {
		e.logger.Warn("cannot read field names from source", "source", source, "error", err)
		return nil
	}
	return schema.FieldPaths()
}

func loadSweepGrid(opts *SweepOptions, resolve sweep.PathResolver) (sweep.Grid, error) {
	var grid sweep.Grid
	if opts.GridFile != "" {
		data, err := os.ReadFile(opts.GridFile)
		if err != nil {
			return sweep.Grid{}, fmt.Errorf("read grid file: %w", err)
		}
		if grid, err = sweep.LoadGrid(data, resolve); err != nil {
			return sweep.Grid{}, err
		}
	}
	for _, spec := range opts.Params {
		p, err := sweep.ParseParam(spec, resolve)
		if err != nil {
			return sweep.Grid{}, err
		}
		grid.Params = append(grid.Params, p)
	}
	if len(grid.Params) == 0 {
		return sweep.Grid{}, errors.New("no parameters: give --param or --grid")
	}
	return grid, grid.Validate()
}
