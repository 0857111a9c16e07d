package cli

import (
	"context"
	"fmt"

	"github.com/pfemlab/pfemrun/internal/runner"
	"github.com/pfemlab/pfemrun/internal/store"
)

// openLedger opens the configured ledger, or returns nil when disabled.
func (e *env) openLedger(disabled bool) (*store.Store, error) {
	path := e.cfg.LedgerPath()
	if path == "" || disabled {
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return st, nil
}

// closeLedger closes st, logging failures.
func (e *env) closeLedger(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		e.logger.Error("error closing ledger", "error", err)
	}
}

// recordCaseRun appends res to the ledger. Ledger failures never fail a run.
func (e *env) recordCaseRun(ctx context.Context, disabled bool, res *runner.RunResult) {
	st, err := e.openLedger(disabled)
	if err != nil {
		e.logger.Warn("ledger unavailable", "error", err)
		return
	}
	if st == nil {
		return
	}
	defer e.closeLedger(st)
	if err := st.RecordCaseRun(ctx, res); err != nil {
		e.logger.Warn("ledger write failed", "case", res.Case.Basename, "error", err)
	}
}
