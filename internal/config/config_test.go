package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, []string{".res", ".msh", ".vec", ".dis", ".con", ".out"}, cfg.OutputExts)
	assert.Equal(t, ".dat", cfg.InputExt)
	assert.Equal(t, "stdin", cfg.Run.Protocol)
	assert.Equal(t, filepath.Join(root, "build", "libpfem.a"), cfg.ArchivePath())
	assert.Equal(t, filepath.Join(root, "source", "chap05", "p51.f03"), cfg.EntrySource("chap05", "p51"))
	assert.Equal(t, filepath.Join(root, "executable", "chap05", "p51"), cfg.ExecutablePath("chap05", "p51"))
	assert.Equal(t, filepath.Join(root, "executable", "chap05"), cfg.CaseWorkDir("chap05"))
}

func TestLoadMissingRoot(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harness root not found")
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	root := t.TempDir()
	_, err := Load(root, filepath.Join(root, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadOverlaysFile(t *testing.T) {
	root := t.TempDir()
	doc := `
case_dir: cases
output_exts: [".res", ".vec"]
toolchain:
  flags: ["-O0", "-g"]
library:
  bootstrap: [main.f90]
  declared_deps:
    solver.f90: [main]
run:
  protocol: arg
  timeout: 90s
sweep:
  workers: 8
programs:
  p51:
    fields:
      E: r4.f1
      nu: r4.f2
`
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultFileName), []byte(doc), 0o644))

	cfg, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cases", "chap05"), cfg.CaseWorkDir("chap05"))
	assert.Equal(t, []string{".res", ".vec"}, cfg.OutputExts)
	assert.Equal(t, []string{"-O0", "-g"}, cfg.Toolchain.Flags)
	assert.Equal(t, "gfortran", cfg.Toolchain.Compiler, "unset fields keep defaults")
	assert.Equal(t, []string{"main.f90"}, cfg.Library.Bootstrap)
	assert.Equal(t, []string{"main"}, cfg.Library.DeclaredDeps["solver.f90"])
	assert.Equal(t, "arg", cfg.Run.Protocol)
	assert.Equal(t, 90*time.Second, cfg.Run.Timeout)
	assert.Equal(t, 8, cfg.Sweep.Workers)

	path, ok := cfg.FieldPath("p51", "nu")
	require.True(t, ok)
	assert.Equal(t, "r4.f2", path)
	_, ok = cfg.FieldPath("p52", "nu")
	assert.False(t, ok)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown protocol", "run:\n  protocol: socket\n", "invalid config"},
		{"zero workers", "sweep:\n  workers: 0\n", "invalid config"},
		{"extension without dot", "output_exts: [res]\n", "invalid config"},
		{"bad field path", "programs:\n  p51:\n    fields:\n      E: record4\n", "invalid config"},
		{"unknown key", "outputs: [.res]\n", "invalid config"},
		{"bad timeout", "run:\n  timeout: soon\n", "run.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(Default(t.TempDir()), []byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	base := Default("/h")
	cfg, err := Parse(base, []byte("# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, base.OutputExts, cfg.OutputExts)
}
