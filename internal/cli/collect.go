package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pfemlab/pfemrun/internal/bundle"
	"github.com/pfemlab/pfemrun/internal/link"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// CollectOptions holds flags for the collect command.
type CollectOptions struct {
	*RootOptions
	Run           bool
	RebuildFirst  bool
	Archive       bool
	SingleArchive bool
}

// CollectedCase is one bundle in the collect summary.
type CollectedCase struct {
	Chapter string                `json:"chapter"`
	Program string                `json:"program"`
	Case    string                `json:"case"`
	Dir     string                `json:"dir"`
	Archive string                `json:"archive,omitempty"`
	Files   int                   `json:"files"`
	Summary *runner.ResultSummary `json:"result_summary,omitempty"`
}

// CollectSummary is the result of the collect command.
type CollectSummary struct {
	BundleDir string          `json:"bundle_dir"`
	Attempted int             `json:"attempted"`
	Collected []CollectedCase `json:"collected"`
	Skipped   []bundle.Skip   `json:"skipped"`
	Failures  []bundle.Skip   `json:"failures"`
	Archive   string          `json:"archive,omitempty"`
}

// WriteText implements textWriter.
func (s *CollectSummary) WriteText(w io.Writer) {
	fmt.Fprintf(w, "collected %d of %d cases into %s\n", len(s.Collected), s.Attempted, s.BundleDir)
	for _, c := range s.Collected {
		fmt.Fprintf(w, "  %s/%s (%s): %d files\n", c.Chapter, c.Case, c.Program, c.Files)
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "skipped %d:\n", len(s.Skipped))
		for _, sk := range s.Skipped {
			fmt.Fprintf(w, "  %s/%s: %s\n", sk.Chapter, sk.Case, sk.Reason)
		}
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "failed %d:\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %s/%s: %s\n", f.Chapter, f.Case, f.Reason)
		}
	}
	if s.Archive != "" {
		fmt.Fprintf(w, "archive: %s\n", s.Archive)
	}
}

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "collect [chapter...]",
		Short: "Collect evidence bundles for every input case",
		Long: `Collect an evidence bundle for every input case of the named chapters,
or of every chapter when none are named.

Each bundle holds the program source with line numbers, the input deck,
the record-read sites and their surrounding source, the output files and
a provenance record. Cases whose program cannot be found are skipped and
cases that fail are reported; neither stops the pass.

Example:
  pfemrun collect
  pfemrun collect --run --archive chap05 chap06
  pfemrun collect --rebuild-first --single-archive`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Run, "run", false, "run each case before packaging it")
	cmd.Flags().BoolVar(&opts.RebuildFirst, "rebuild-first", false, "force a library rebuild before collecting")
	cmd.Flags().BoolVar(&opts.Archive, "archive", false, "write a .tar.gz next to each bundle")
	cmd.Flags().BoolVar(&opts.SingleArchive, "single-archive", false, "write one .tar.gz of the whole pass")

	return cmd
}

func runCollect(cmd *cobra.Command, opts *CollectOptions, chapters []string) error {
	e, err := loadEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd, e.logger)
	defer stop()

	r, err := runner.New(e.cfg, e.logger)
	if err != nil {
		return e.fail(ExitCommandError, CodeConfig, "invalid run settings", err)
	}
	c := &bundle.Collector{
		Config:    e.cfg,
		Builder:   modgraph.NewBuilder(e.cfg, e.toolchain, e.logger),
		Linker:    link.New(e.cfg, e.toolchain, e.logger),
		Runner:    r,
		Toolchain: e.toolchain,
		Logger:    e.logger,
	}
	report, err := c.Collect(ctx, bundle.Options{
		Chapters:      chapters,
		Run:           opts.Run,
		RebuildFirst:  opts.RebuildFirst,
		Archive:       opts.Archive,
		SingleArchive: opts.SingleArchive,
	})
	if err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "collection failed", err)
	}

	summary := &CollectSummary{
		BundleDir: e.cfg.BundlePath(),
		Attempted: report.Attempted(),
		Collected: make([]CollectedCase, 0, len(report.Collected)),
		Skipped:   report.Skipped,
		Failures:  report.Failures,
		Archive:   report.Archive,
	}
	for _, b := range report.Collected {
		cc := CollectedCase{
			Chapter: b.Case.Chapter,
			Program: b.Case.Program,
			Case:    b.Case.Basename,
			Dir:     b.Dir,
			Archive: b.Archive,
			Files:   len(b.Files),
		}
		if b.Provenance != nil {
			cc.Summary = b.Provenance.Summary
		}
		summary.Collected = append(summary.Collected, cc)
	}
	return e.out.Success(summary)
}
