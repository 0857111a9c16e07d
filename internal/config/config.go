// Package config defines the immutable harness configuration.
//
// Root paths, chapter layout, extension lists and toolchain settings are
// carried in a Config value instead of being assumed, so every component can
// be exercised against a temporary directory. A Config is built from the
// defaults, optionally overlaid with a pfemrun.yaml file at the root.
package config

import (
	"path/filepath"
	"time"
)

// DefaultFileName is the configuration file looked up at the harness root.
const DefaultFileName = "pfemrun.yaml"

// Config is the harness configuration. It is passed by value and never
// mutated after Load returns.
type Config struct {
	Root string

	SourceDir  string // program entry sources: <SourceDir>/<chapter>/<program><ext>
	LibraryDir string // shared compilation units
	BuildDir   string // objects, interface files, archive
	BinDir     string // executables: <BinDir>/<chapter>/<program>
	CaseDir    string // case inputs and run outputs: <CaseDir>/<chapter>/<case>.dat
	BundleDir  string
	SweepDir   string
	Ledger     string // SQLite ledger path; empty disables the ledger

	SourceExts []string
	InputExt   string
	OutputExts []string

	Toolchain ToolchainConfig
	Library   LibraryConfig
	Bundle    BundleConfig
	Run       RunConfig
	Sweep     SweepConfig
	Programs  map[string]ProgramConfig
}

// ToolchainConfig selects the compiler and archiver.
type ToolchainConfig struct {
	Compiler    string
	Flags       []string
	Archiver    string
	ArchiveName string
}

// LibraryConfig controls dependency resolution among library units.
type LibraryConfig struct {
	// Bootstrap lists foundational units compiled first when interface
	// relations cannot be inferred from source text.
	Bootstrap []string
	// External lists interfaces supplied by the compiler itself.
	External []string
	// DeclaredDeps adds interface requirements per unit (relative path or
	// base name) on top of the inferred ones.
	DeclaredDeps map[string][]string
}

// BundleConfig controls evidence bundle contents.
type BundleConfig struct {
	ReadMarker    string // regular expression locating record reads
	ContextRadius int
	ResHeadLines  int
	HelperSources []string // relative to Root, copied when present
}

// RunConfig controls the case runner.
type RunConfig struct {
	Protocol string // "stdin", "arg" or "env"
	Timeout  time.Duration
}

// SweepConfig controls sweep execution.
type SweepConfig struct {
	Workers int
}

// ProgramConfig carries per-program schema knowledge.
type ProgramConfig struct {
	// Fields maps a parameter name to a field path such as "r2.f2".
	Fields map[string]string
}

// Default returns the built-in configuration rooted at root.
func Default(root string) Config {
	return Config{
		Root:       root,
		SourceDir:  "source",
		LibraryDir: "library",
		BuildDir:   "build",
		BinDir:     "executable",
		CaseDir:    "executable",
		BundleDir:  "pfem_yaml_bundle",
		SweepDir:   "sweeps",
		Ledger:     filepath.Join(".pfemrun", "ledger.db"),

		SourceExts: []string{".f03", ".f90"},
		InputExt:   ".dat",
		OutputExts: []string{".res", ".msh", ".vec", ".dis", ".con", ".out"},

		Toolchain: ToolchainConfig{
			Compiler:    "gfortran",
			Flags:       []string{"-O2"},
			Archiver:    "ar",
			ArchiveName: "libpfem.a",
		},
		Library: LibraryConfig{
			Bootstrap: []string{"main.f03", "geom.f03"},
			External: []string{
				"iso_fortran_env", "iso_c_binding",
				"ieee_arithmetic", "ieee_exceptions", "ieee_features",
				"omp_lib", "mpi",
			},
			DeclaredDeps: map[string][]string{},
		},
		Bundle: BundleConfig{
			ReadMarker:    `(?i)\bREAD\s*\(\s*10\s*,`,
			ContextRadius: 6,
			ResHeadLines:  40,
			HelperSources: []string{
				filepath.Join("library", "main", "main.f03"),
				filepath.Join("library", "geom", "geom.f03"),
			},
		},
		Run: RunConfig{
			Protocol: "stdin",
			Timeout:  10 * time.Minute,
		},
		Sweep: SweepConfig{
			Workers: 4,
		},
		Programs: map[string]ProgramConfig{},
	}
}

func (c Config) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// LibraryPath is the directory scanned for shared compilation units.
func (c Config) LibraryPath() string { return c.abs(c.LibraryDir) }

// ObjectDir holds compiled object files.
func (c Config) ObjectDir() string { return filepath.Join(c.abs(c.BuildDir), "obj") }

// InterfaceDir holds compiled interface (.mod) files.
func (c Config) InterfaceDir() string { return filepath.Join(c.abs(c.BuildDir), "mod") }

// ArchivePath is the shared archive every program links against.
func (c Config) ArchivePath() string {
	return filepath.Join(c.abs(c.BuildDir), c.Toolchain.ArchiveName)
}

// ChapterSourceDir is the directory holding a chapter's program sources.
func (c Config) ChapterSourceDir(chapter string) string {
	return filepath.Join(c.abs(c.SourceDir), chapter)
}

// EntrySource is the conventional entry-point source for a program. The
// first configured source extension is the convention.
func (c Config) EntrySource(chapter, program string) string {
	return filepath.Join(c.ChapterSourceDir(chapter), program+c.SourceExts[0])
}

// ExecutablePath is where the linker writes a program.
func (c Config) ExecutablePath(chapter, program string) string {
	return filepath.Join(c.abs(c.BinDir), chapter, program)
}

// CaseWorkDir is the designated working directory of a chapter's cases.
func (c Config) CaseWorkDir(chapter string) string {
	return filepath.Join(c.abs(c.CaseDir), chapter)
}

// CaseRoot is the directory whose subdirectories are chapters.
func (c Config) CaseRoot() string { return c.abs(c.CaseDir) }

// BundlePath is the evidence bundle output root.
func (c Config) BundlePath() string { return c.abs(c.BundleDir) }

// SweepPath is the default sweep output root.
func (c Config) SweepPath() string { return c.abs(c.SweepDir) }

// LedgerPath is the absolute ledger path, or "" when disabled.
func (c Config) LedgerPath() string {
	if c.Ledger == "" {
		return ""
	}
	return c.abs(c.Ledger)
}

// HelperPaths resolves the configured helper sources against the root.
func (c Config) HelperPaths() []string {
	paths := make([]string, len(c.Bundle.HelperSources))
	for i, h := range c.Bundle.HelperSources {
		paths[i] = c.abs(h)
	}
	return paths
}

// FieldPath returns the configured field path for a program parameter.
func (c Config) FieldPath(program, param string) (string, bool) {
	p, ok := c.Programs[program]
	if !ok {
		return "", false
	}
	path, ok := p.Fields[param]
	return path, ok
}
