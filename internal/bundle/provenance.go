package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pfemlab/pfemrun/internal/canonical"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// Provenance records where and how a bundle was produced.
type Provenance struct {
	Case        runner.Case           `yaml:"case"`
	Host        string                `yaml:"host"`
	OS          string                `yaml:"os"`
	Arch        string                `yaml:"arch"`
	Toolchain   string                `yaml:"toolchain,omitempty"`
	CollectedAt time.Time             `yaml:"collected_at"`
	Source      string                `yaml:"source"`
	WorkDir     string                `yaml:"work_dir"`
	Executable  string                `yaml:"executable,omitempty"`
	Run         *RunInfo              `yaml:"run,omitempty"`
	Summary     *runner.ResultSummary `yaml:"result_summary,omitempty"`
	Files       []FileDigest          `yaml:"files"`
	Digest      string                `yaml:"bundle_digest"`
}

// RunInfo describes the run performed while collecting.
type RunInfo struct {
	ExitCode   int       `yaml:"exit_code"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
}

// FileDigest is the SHA-256 of one bundled file.
type FileDigest struct {
	Name   string `yaml:"name"`
	SHA256 string `yaml:"sha256"`
}

// digestDir hashes every regular file directly in dir except skip, sorted
// by name, and returns the list with a bundle digest over it.
func digestDir(dir string, skip ...string) ([]FileDigest, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", err
	}
	var files []FileDigest
	for _, e := range entries {
		if !e.Type().IsRegular() || contains(skip, e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, "", err
		}
		sum := sha256.Sum256(data)
		files = append(files, FileDigest{Name: e.Name(), SHA256: hex.EncodeToString(sum[:])})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var manifest strings.Builder
	for _, f := range files {
		fmt.Fprintf(&manifest, "%s  %s\n", f.SHA256, f.Name)
	}
	return files, canonical.DigestBytes(canonical.DomainBundle, []byte(manifest.String())), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
