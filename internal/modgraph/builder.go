package modgraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pfemlab/pfemrun/internal/config"
	"github.com/pfemlab/pfemrun/internal/toolchain"
)

// Builder compiles the shared library into a single archive.
type Builder struct {
	LibraryDir   string
	ObjectDir    string
	InterfaceDir string
	Archive      string
	Exts         []string
	Declared     map[string][]string
	Options      PlanOptions

	Toolchain toolchain.Toolchain
	Logger    *slog.Logger
}

// Result describes a build.
type Result struct {
	Archive  string
	Order    []string // unit names in compile order; empty when skipped
	Objects  []string
	Compiled int
	Skipped  bool // archive existed and no rebuild was forced
	Inferred bool
}

// NewBuilder creates a Builder from the harness configuration.
func NewBuilder(cfg config.Config, tc toolchain.Toolchain, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		LibraryDir:   cfg.LibraryPath(),
		ObjectDir:    cfg.ObjectDir(),
		InterfaceDir: cfg.InterfaceDir(),
		Archive:      cfg.ArchivePath(),
		Exts:         cfg.SourceExts,
		Declared:     cfg.Library.DeclaredDeps,
		Options: PlanOptions{
			Bootstrap: cfg.Library.Bootstrap,
			External:  cfg.Library.External,
		},
		Toolchain: tc,
		Logger:    logger,
	}
}

// Plan scans the library and resolves the compile order without building.
func (b *Builder) Plan() (*Plan, error) {
	units, err := Scan(b.LibraryDir, b.Exts)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, &PreconditionError{What: "library compilation units", Path: b.LibraryDir}
	}
	Declare(units, b.Declared)
	return NewPlan(units, b.Options)
}

// Build produces the archive. With force false and an archive at least as
// new as every unit it does nothing; a newer unit rebuilds the whole
// library. Every error is fatal for the build.
func (b *Builder) Build(ctx context.Context, force bool) (*Result, error) {
	if _, err := os.Stat(b.LibraryDir); err != nil {
		return nil, &PreconditionError{What: "library directory", Path: b.LibraryDir}
	}
	if !force {
		if _, err := os.Stat(b.Archive); err == nil {
			units, err := Scan(b.LibraryDir, b.Exts)
			if err != nil {
				return nil, err
			}
			newer, err := NewerSource(b.Archive, units)
			if err != nil {
				return nil, err
			}
			if newer == "" {
				b.Logger.Debug("archive up to date, skipping build", "archive", b.Archive)
				return &Result{Archive: b.Archive, Skipped: true}, nil
			}
			b.Logger.Info("library source changed, rebuilding", "source", newer)
		}
	}

	// Resolve first: a cycle or missing interface must not destroy the
	// previous build outputs.
	plan, err := b.Plan()
	if err != nil {
		return nil, err
	}
	b.Logger.Info("building library", "units", len(plan.Order), "inferred", plan.Inferred)

	if err := b.wipe(); err != nil {
		return nil, err
	}

	result := &Result{Archive: b.Archive, Inferred: plan.Inferred}
	for _, u := range plan.Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.checkInterfaces(u, plan); err != nil {
			return nil, err
		}

		obj := filepath.Join(b.ObjectDir, u.ObjectName())
		b.Logger.Debug("compiling unit", "unit", u.Name)
		diag, err := b.Toolchain.Compile(ctx, toolchain.CompileRequest{
			Source:       u.Path,
			Object:       obj,
			InterfaceDir: b.InterfaceDir,
		})
		if err != nil {
			return nil, &CompileError{Unit: u.Path, Diagnostics: string(diag), Err: err}
		}
		result.Order = append(result.Order, u.Name)
		result.Objects = append(result.Objects, obj)
		result.Compiled++
	}

	if err := b.archive(ctx, result.Objects); err != nil {
		return nil, err
	}
	b.Logger.Info("library built", "archive", b.Archive, "compiled", result.Compiled)
	return result, nil
}

// wipe removes every build output so a rebuild starts from scratch.
func (b *Builder) wipe() error {
	for _, p := range []string{b.ObjectDir, b.InterfaceDir, b.Archive} {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("clean %s: %w", p, err)
		}
	}
	for _, d := range []string{b.ObjectDir, b.InterfaceDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// checkInterfaces verifies every in-library interface u requires has an
// interface file before u is compiled.
func (b *Builder) checkInterfaces(u *Unit, plan *Plan) error {
	for _, iface := range u.Requires {
		p, ok := plan.Providers[iface]
		if !ok || p == u {
			continue
		}
		mod := filepath.Join(b.InterfaceDir, iface+".mod")
		if _, err := os.Stat(mod); err != nil {
			return &InterfaceError{Kind: InterfaceNotCompiled, Unit: u.Name, Interface: iface, Path: mod}
		}
	}
	return nil
}

// archive writes the archive under a temporary name and renames it.
func (b *Builder) archive(ctx context.Context, objects []string) error {
	if err := os.MkdirAll(filepath.Dir(b.Archive), 0o755); err != nil {
		return err
	}
	tmp := b.Archive + ".tmp"
	_ = os.Remove(tmp)
	diag, err := b.Toolchain.Archive(ctx, tmp, objects)
	if err != nil {
		_ = os.Remove(tmp)
		return &CompileError{Unit: b.Archive, Diagnostics: string(diag), Err: err}
	}
	if err := os.Rename(tmp, b.Archive); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install archive: %w", err)
	}
	return nil
}

// NewerSource returns the first unit modified after archive, or "" when
// the archive is at least as new as every unit.
func NewerSource(archive string, units []*Unit) (string, error) {
	info, err := os.Stat(archive)
	if err != nil {
		return "", err
	}
	for _, u := range units {
		si, err := os.Stat(u.Path)
		if err != nil {
			return "", err
		}
		if info.ModTime().Before(si.ModTime()) {
			return u.Path, nil
		}
	}
	return "", nil
}
