// Package link produces one executable per program by linking its entry
// source against the shared archive.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pfemlab/pfemrun/internal/config"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/toolchain"
)

var (
	// ErrArchiveMissing means the shared archive has not been built.
	ErrArchiveMissing = errors.New("shared archive not found")
	// ErrArchiveStale means a library source is newer than the archive.
	ErrArchiveStale = errors.New("shared archive is older than its sources")
)

// ArchiveError reports an unusable shared archive.
type ArchiveError struct {
	Path   string
	Source string // newer source, for ErrArchiveStale
	Err    error
}

func (e *ArchiveError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%v: %s (newer source %s)", e.Err, e.Path, e.Source)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Path)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// PreconditionError reports a missing entry source.
type PreconditionError struct {
	Chapter string
	Program string
	Path    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("entry source for %s/%s not found: %s", e.Chapter, e.Program, e.Path)
}

// LinkError reports a linker failure.
type LinkError struct {
	Entry       string
	Diagnostics string
	Err         error
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("link %s: %v", e.Entry, e.Err)
	if e.Diagnostics != "" {
		msg += "\n" + e.Diagnostics
	}
	return msg
}

func (e *LinkError) Unwrap() error { return e.Err }

// Result is the executable for a program.
type Result struct {
	Executable string
	Entry      string
	Linked     bool // false when an up-to-date executable was reused
}

// Linker links programs against the shared archive.
type Linker struct {
	cfg       config.Config
	toolchain toolchain.Toolchain
	logger    *slog.Logger
}

// New creates a Linker.
func New(cfg config.Config, tc toolchain.Toolchain, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{cfg: cfg, toolchain: tc, logger: logger}
}

// Link returns the executable for chapter/program, linking it when forced
// or when it is older than its entry source or the archive.
func (l *Linker) Link(ctx context.Context, chapter, program string, force bool) (*Result, error) {
	entry, err := l.EntrySource(chapter, program)
	if err != nil {
		return nil, err
	}
	archive, err := l.checkArchive()
	if err != nil {
		return nil, err
	}

	exe := l.cfg.ExecutablePath(chapter, program)
	res := &Result{Executable: exe, Entry: entry}
	if !force && upToDate(exe, entry, archive) {
		l.logger.Debug("executable up to date", "program", program, "path", exe)
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(exe), 0o755); err != nil {
		return nil, fmt.Errorf("create executable dir: %w", err)
	}
	l.logger.Info("linking program", "chapter", chapter, "program", program)
	diag, err := l.toolchain.Link(ctx, toolchain.LinkRequest{
		Entry:        entry,
		Archive:      l.cfg.ArchivePath(),
		InterfaceDir: l.cfg.InterfaceDir(),
		Output:       exe,
	})
	if err != nil {
		_ = os.Remove(exe)
		return nil, &LinkError{Entry: entry, Diagnostics: string(diag), Err: err}
	}
	res.Linked = true
	return res, nil
}

// EntrySource locates the program's entry source, trying each configured
// source extension in order.
func (l *Linker) EntrySource(chapter, program string) (string, error) {
	dir := l.cfg.ChapterSourceDir(chapter)
	for _, ext := range l.cfg.SourceExts {
		p := filepath.Join(dir, program+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", &PreconditionError{Chapter: chapter, Program: program, Path: l.cfg.EntrySource(chapter, program)}
}

// checkArchive returns the archive's modification time once it is known to
// be at least as new as every library source.
func (l *Linker) checkArchive() (time.Time, error) {
	path := l.cfg.ArchivePath()
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, &ArchiveError{Path: path, Err: ErrArchiveMissing}
	}
	units, err := modgraph.Scan(l.cfg.LibraryPath(), l.cfg.SourceExts)
	if err != nil {
		return time.Time{}, err
	}
	newer, err := modgraph.NewerSource(path, units)
	if err != nil {
		return time.Time{}, err
	}
	if newer != "" {
		return time.Time{}, &ArchiveError{Path: path, Source: newer, Err: ErrArchiveStale}
	}
	return info.ModTime(), nil
}

func upToDate(exe, entry string, archive time.Time) bool {
	ei, err := os.Stat(exe)
	if err != nil {
		return false
	}
	si, err := os.Stat(entry)
	if err != nil {
		return false
	}
	return !ei.ModTime().Before(si.ModTime()) && !ei.ModTime().Before(archive)
}
