package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfemlab/pfemrun/internal/config"
	"github.com/pfemlab/pfemrun/internal/toolchain"
)

// newLogger writes text logs to stderr at debug level when verbose.
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// env is the state every command starts from.
type env struct {
	cfg       config.Config
	logger    *slog.Logger
	toolchain toolchain.Toolchain
	out       *OutputFormatter
}

// loadEnv resolves the configuration and toolchain. Failures are
// configuration errors.
func loadEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	logger := newLogger(opts)
	cfg, err := config.Load(opts.Root, opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	tc := opts.Toolchain
	if tc == nil {
		tc = toolchain.NewGNU(cfg.Toolchain.Compiler, cfg.Toolchain.Flags, cfg.Toolchain.Archiver)
	}
	logger.Debug("configuration loaded", "root", cfg.Root, "compiler", cfg.Toolchain.Compiler)
	return &env{
		cfg:       cfg,
		logger:    logger,
		toolchain: tc,
		out: &OutputFormatter{
			Format:  opts.Format,
			Writer:  cmd.OutOrStdout(),
			Verbose: opts.Verbose,
		},
	}, nil
}

// fail reports err in the configured format and returns it with an exit
// code. Text output leaves printing to main.
func (e *env) fail(exit int, code, message string, err error) error {
	if e.out.Format == "json" {
		_ = e.out.Error(code, message+": "+err.Error(), nil)
	}
	return WrapExitError(exit, message, err)
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
