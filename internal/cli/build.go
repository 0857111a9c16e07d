package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfemlab/pfemrun/internal/link"
	"github.com/pfemlab/pfemrun/internal/modgraph"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Force bool
	Plan  bool
}

// BuildSummary is the result of the build command.
type BuildSummary struct {
	Archive    string   `json:"archive"`
	Skipped    bool     `json:"skipped"`
	Compiled   int      `json:"compiled"`
	Order      []string `json:"order,omitempty"`
	Inferred   bool     `json:"inferred"`
	Executable string   `json:"executable,omitempty"`
	Linked     bool     `json:"linked,omitempty"`
}

// WriteText implements textWriter.
func (s *BuildSummary) WriteText(w io.Writer) {
	switch {
	case s.Skipped:
		fmt.Fprintf(w, "library up to date: %s\n", s.Archive)
	case s.Compiled > 0:
		fmt.Fprintf(w, "compiled %d units: %s\n", s.Compiled, strings.Join(s.Order, " "))
		fmt.Fprintf(w, "archive: %s\n", s.Archive)
	default:
		fmt.Fprintf(w, "compile order: %s\n", strings.Join(s.Order, " "))
	}
	if s.Executable != "" {
		verb := "reused"
		if s.Linked {
			verb = "linked"
		}
		fmt.Fprintf(w, "%s %s\n", verb, s.Executable)
	}
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build [chapter program]",
		Short: "Build the shared library and optionally link a program",
		Long: `Build the shared library in dependency order.

Library units are scanned for the interfaces they provide and use, ordered
topologically and compiled into a single archive. An existing archive is
reused unless --force is given. With a chapter and program the program is
then linked against the archive.

Example:
  pfemrun build
  pfemrun build --force chap05 p51
  pfemrun build --plan`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "rebuild the library and relink from scratch")
	cmd.Flags().BoolVar(&opts.Plan, "plan", false, "print the compile order without building")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions, args []string) error {
	e, err := loadEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd, e.logger)
	defer stop()

	builder := modgraph.NewBuilder(e.cfg, e.toolchain, e.logger)
	if opts.Plan {
		plan, err := builder.Plan()
		if err != nil {
			return e.fail(ExitCommandError, ErrorCode(err), "failed to plan library build", err)
		}
		return e.out.Success(&BuildSummary{Archive: builder.Archive, Order: plan.Names(), Inferred: plan.Inferred})
	}

	res, err := builder.Build(ctx, opts.Force)
	if err != nil {
		return e.fail(ExitCommandError, ErrorCode(err), "library build failed", err)
	}
	summary := &BuildSummary{
		Archive:  res.Archive,
		Skipped:  res.Skipped,
		Compiled: res.Compiled,
		Order:    res.Order,
		Inferred: res.Inferred,
	}

	if len(args) == 2 {
		lr, err := link.New(e.cfg, e.toolchain, e.logger).Link(ctx, args[0], args[1], opts.Force)
		if err != nil {
			return e.fail(ExitCommandError, ErrorCode(err), "link failed", err)
		}
		summary.Executable = lr.Executable
		summary.Linked = lr.Linked
	}
	return e.out.Success(summary)
}
