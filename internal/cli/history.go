package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfemlab/pfemrun/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Program     string
	Fingerprint string
	Limit       int
	Runs        bool
	Cases       bool
}

// HistorySummary is the result of the history command. Exactly one of the
// fields is set, depending on the query.
type HistorySummary struct {
	Sweeps []store.SweepRow   `json:"sweeps,omitempty"`
	Sweep  *SweepDetail       `json:"sweep,omitempty"`
	Cases  []store.CaseRunRow `json:"cases,omitempty"`
}

// SweepDetail is one sweep with its runs.
type SweepDetail struct {
	store.SweepRow
	Runs []store.RunRow `json:"runs,omitempty"`
}

// WriteText implements textWriter.
func (s *HistorySummary) WriteText(w io.Writer) {
	switch {
	case s.Sweep != nil:
		writeSweepRow(w, s.Sweep.SweepRow)
		for _, r := range s.Sweep.Runs {
			line := fmt.Sprintf("  %s %s %s", r.Name, formatAssignment(r.Assignment), r.Status)
			if r.Error != "" {
				line += ": " + r.Error
			}
			fmt.Fprintln(w, line)
		}
	case s.Cases != nil:
		for _, c := range s.Cases {
			status := "ok"
			if !c.Success {
				status = fmt.Sprintf("failed (exit %d)", c.ExitCode)
			}
			fmt.Fprintf(w, "%s %s/%s %s: %s\n", c.StartedAt.Format(time.RFC3339), c.Chapter, c.Program, c.Basename, status)
		}
	default:
		if len(s.Sweeps) == 0 {
			fmt.Fprintln(w, "no sweeps recorded")
		}
		for _, row := range s.Sweeps {
			writeSweepRow(w, row)
		}
	}
}

func writeSweepRow(w io.Writer, row store.SweepRow) {
	state := "complete"
	if !row.Complete {
		state = "incomplete"
	}
	fmt.Fprintf(w, "%s %s %s/%s %s: %d runs, %d succeeded, %d failed, %d skipped (%s)\n",
		row.StartedAt.Format(time.RFC3339), row.ID, row.Chapter, row.Program, row.BaseCase,
		row.Total, row.Succeeded, row.Failed, row.Skipped, state)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [sweep-id]",
		Short: "Show recorded sweeps and runs from the ledger",
		Long: `Show sweeps recorded in the ledger, newest first.

With a sweep ID the sweep is shown alone, with its runs when --runs is
given. With --cases the single-case runs are listed instead.

Example:
  pfemrun history --program p51
  pfemrun history --runs 0192a6c4-7b7e-7000-8000-000000000000
  pfemrun history --cases --limit 20`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "only sweeps or runs of this program")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "only sweeps with this fingerprint")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum rows (0 for all)")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "include the runs of the named sweep")
	cmd.Flags().BoolVar(&opts.Cases, "cases", false, "list single-case runs instead of sweeps")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, args []string) error {
	e, err := loadEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := e.openLedger(false)
	if err != nil {
		return e.fail(ExitCommandError, CodeLedger, "ledger unavailable", err)
	}
	if st == nil {
		return e.fail(ExitCommandError, CodeLedger, "ledger unavailable", errors.New("ledger disabled in configuration"))
	}
	defer e.closeLedger(st)

	ctx := cmd.Context()
	summary := &HistorySummary{}
	switch {
	case len(args) == 1:
		row, err := st.GetSweep(ctx, args[0])
		if err != nil {
			return e.fail(ExitCommandError, CodeLedger, "sweep lookup failed", err)
		}
		detail := &SweepDetail{SweepRow: row}
		if opts.Runs {
			if detail.Runs, err = st.SweepRuns(ctx, row.ID); err != nil {
				return e.fail(ExitCommandError, CodeLedger, "run lookup failed", err)
			}
		}
		summary.Sweep = detail
	case opts.Cases:
		rows, err := st.ListCaseRuns(ctx, opts.Program, opts.Limit)
		if err != nil {
			return e.fail(ExitCommandError, CodeLedger, "case run lookup failed", err)
		}
		summary.Cases = rows
		if summary.Cases == nil {
			summary.Cases = []store.CaseRunRow{}
		}
	default:
		rows, err := st.ListSweeps(ctx, store.SweepFilter{
			Program:     opts.Program,
			Fingerprint: opts.Fingerprint,
			Limit:       opts.Limit,
		})
		if err != nil {
			return e.fail(ExitCommandError, CodeLedger, "sweep lookup failed", err)
		}
		summary.Sweeps = rows
	}
	return e.out.Success(summary)
}
