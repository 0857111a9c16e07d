// Package bundle assembles self-contained evidence bundles, one directory
// per case, holding the program source, the case input, its outputs and
// the read-statement context that maps input records to source.
//
// Collection is best-effort: a case that cannot be derived, built, run or
// copied is reported and skipped while the pass continues.
package bundle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pfemlab/pfemrun/internal/config"
	"github.com/pfemlab/pfemrun/internal/fsutil"
	"github.com/pfemlab/pfemrun/internal/link"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// LibraryBuilder builds the shared archive.
type LibraryBuilder interface {
	Build(ctx context.Context, force bool) (*modgraph.Result, error)
}

// ProgramLinker produces a program executable.
type ProgramLinker interface {
	Link(ctx context.Context, chapter, program string, force bool) (*link.Result, error)
}

// CaseRunner runs one case.
type CaseRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (*runner.RunResult, error)
}

// Options selects what a collection pass does.
type Options struct {
	Chapters      []string // empty collects every chapter
	Run           bool     // run each case before packaging
	RebuildFirst  bool     // force a library rebuild before the pass
	Archive       bool     // write <case>.tar.gz next to each case directory
	SingleArchive bool     // write one archive of the whole pass
}

// Bundle is one collected case.
type Bundle struct {
	Case       runner.Case
	Dir        string
	Archive    string
	Files      []string
	Provenance *Provenance
}

// Skip is a case left out of the pass.
type Skip struct {
	Chapter string `json:"chapter"`
	Case    string `json:"case"`
	Reason  string `json:"reason"`
}

// Report summarises a collection pass.
type Report struct {
	Collected []*Bundle
	Skipped   []Skip // basename did not resolve to a program
	Failures  []Skip // collection of a resolved case failed
	Archive   string // single archive, when requested
}

// Attempted is the number of cases considered.
func (r *Report) Attempted() int {
	return len(r.Collected) + len(r.Skipped) + len(r.Failures)
}

// Collector runs collection passes.
type Collector struct {
	Config    config.Config
	Builder   LibraryBuilder
	Linker    ProgramLinker
	Runner    CaseRunner
	Toolchain interface {
		Version(ctx context.Context) (string, error)
	}
	Now    func() time.Time
	Logger *slog.Logger

	marker *regexp.Regexp
}

// Collect runs one pass. Only a missing case root or chapter, an invalid
// read marker, or a failed library build is returned as an error.
func (c *Collector) Collect(ctx context.Context, opts Options) (*Report, error) {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	marker, err := regexp.Compile(c.Config.Bundle.ReadMarker)
	if err != nil {
		return nil, fmt.Errorf("invalid read marker: %w", err)
	}
	c.marker = marker

	chapters, err := c.chapters(opts.Chapters)
	if err != nil {
		return nil, err
	}
	if opts.RebuildFirst && c.Builder == nil {
		return nil, errors.New("rebuild requested without a library builder")
	}
	// A run pass needs the archive; an existing one is reused.
	if c.Builder != nil && (opts.RebuildFirst || opts.Run) {
		if _, err := c.Builder.Build(ctx, opts.RebuildFirst); err != nil {
			return nil, err
		}
	}

	toolVersion := ""
	if c.Toolchain != nil {
		if v, err := c.Toolchain.Version(ctx); err == nil {
			toolVersion = v
		} else {
			c.Logger.Warn("toolchain version unavailable", "error", err)
		}
	}

	report := &Report{}
	linked := map[string]string{}
	for _, chapter := range chapters {
		cases, err := c.cases(chapter)
		if err != nil {
			return nil, err
		}
		for _, input := range cases {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			basename := strings.TrimSuffix(filepath.Base(input), c.Config.InputExt)
			program, ok := DeriveProgram(basename, func(p string) bool {
				return c.sourceFor(chapter, p) != ""
			})
			if !ok {
				c.Logger.Warn("no program source for case, skipping", "chapter", chapter, "case", basename)
				report.Skipped = append(report.Skipped, Skip{Chapter: chapter, Case: basename, Reason: "no matching program source"})
				continue
			}

			kase := runner.Case{Chapter: chapter, Program: program, Basename: basename, InputPath: input}
			b, err := c.collectCase(ctx, kase, opts, linked, toolVersion)
			if err != nil {
				c.Logger.Warn("case collection failed, skipping", "chapter", chapter, "case", basename, "error", err)
				report.Failures = append(report.Failures, Skip{Chapter: chapter, Case: basename, Reason: err.Error()})
				continue
			}
			c.Logger.Info("collected case", "chapter", chapter, "case", basename, "files", len(b.Files))
			report.Collected = append(report.Collected, b)
		}
	}

	if opts.SingleArchive && len(report.Collected) > 0 {
		root := c.Config.BundlePath()
		dst := filepath.Join(root, filepath.Base(root)+".tar.gz")
		if err := WriteTarGz(dst, filepath.Join(root, "cases"), "cases"); err != nil {
			return report, err
		}
		report.Archive = dst
	}
	return report, nil
}

func (c *Collector) chapters(requested []string) ([]string, error) {
	root := c.Config.CaseRoot()
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("case directory not found: %s", root)
	}
	if len(requested) > 0 {
		for _, ch := range requested {
			if info, err := os.Stat(filepath.Join(root, ch)); err != nil || !info.IsDir() {
				return nil, fmt.Errorf("chapter directory not found: %s", filepath.Join(root, ch))
			}
		}
		return requested, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var chapters []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			chapters = append(chapters, e.Name())
		}
	}
	return chapters, nil
}

func (c *Collector) cases(chapter string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.Config.CaseWorkDir(chapter), "*"+c.Config.InputExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// sourceFor returns the program's entry source, or "".
func (c *Collector) sourceFor(chapter, program string) string {
	dir := c.Config.ChapterSourceDir(chapter)
	for _, ext := range c.Config.SourceExts {
		if p := filepath.Join(dir, program+ext); fsutil.Exists(p) {
			return p
		}
	}
	return ""
}

func (c *Collector) collectCase(ctx context.Context, kase runner.Case, opts Options, linked map[string]string, toolVersion string) (*Bundle, error) {
	source := c.sourceFor(kase.Chapter, kase.Program)
	workDir := filepath.Dir(kase.InputPath)
	prov := &Provenance{
		Case:        kase,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Toolchain:   toolVersion,
		CollectedAt: c.Now().UTC(),
		Source:      source,
		WorkDir:     workDir,
	}
	prov.Host, _ = os.Hostname()

	var outputs []string
	if opts.Run {
		res, exe, err := c.run(ctx, kase, linked)
		if err != nil {
			return nil, err
		}
		prov.Executable = exe
		prov.Run = &RunInfo{ExitCode: res.ExitCode, StartedAt: res.StartedAt.UTC(), FinishedAt: res.FinishedAt.UTC()}
		if !res.Succeeded() {
			return nil, fmt.Errorf("run failed: %s", res.Failure())
		}
		outputs = res.Outputs
	} else {
		outputs = runner.DiscoverOutputs(workDir, kase.Basename, c.Config.OutputExts)
	}

	dir := filepath.Join(c.Config.BundlePath(), "cases", kase.Chapter, kase.Basename)
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	files := append([]string{source, kase.InputPath}, outputs...)
	for _, h := range c.Config.HelperPaths() {
		if fsutil.Exists(h) && filepath.Base(h) != filepath.Base(source) {
			files = append(files, h)
		}
	}
	if _, err := fsutil.CopyInto(dir, files...); err != nil {
		return nil, fmt.Errorf("copy into bundle: %w", err)
	}

	src, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	schema := ExtractSchema(kase.Program, src, c.marker, c.Config.Bundle.ContextRadius)
	input, err := os.ReadFile(kase.InputPath)
	if err != nil {
		return nil, err
	}
	schema.MapInput(input)
	schemaYAML, err := yaml.Marshal(schema)
	if err != nil {
		return nil, err
	}
	derived := map[string][]byte{
		kase.Program + "_source_numbered.txt": []byte(schema.NumberedSource()),
		kase.Program + "_READ10_lines.txt":    []byte(schema.ReadLines()),
		kase.Program + "_READ10_context.txt":  []byte(schema.ReadContext()),
		kase.Basename + "_input_map.txt":      []byte(schema.InputMap()),
		"schema.yaml":                         schemaYAML,
	}
	for _, out := range outputs {
		if filepath.Ext(out) != ".res" {
			continue
		}
		head, err := headLines(out, c.Config.Bundle.ResHeadLines)
		if err != nil {
			return nil, err
		}
		derived[kase.Basename+"_res_head.txt"] = head
		if prov.Summary, err = runner.ParseResultSummary(out); err != nil {
			return nil, err
		}
	}
	for name, data := range derived {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, err
		}
	}

	if prov.Files, prov.Digest, err = digestDir(dir, "provenance.yaml"); err != nil {
		return nil, err
	}
	provYAML, err := yaml.Marshal(prov)
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, "provenance.yaml"), provYAML, 0o644); err != nil {
		return nil, err
	}

	b := &Bundle{Case: kase, Dir: dir, Provenance: prov}
	for _, f := range prov.Files {
		b.Files = append(b.Files, f.Name)
	}
	b.Files = append(b.Files, "provenance.yaml")
	sort.Strings(b.Files)

	if opts.Archive {
		b.Archive = dir + ".tar.gz"
		if err := WriteTarGz(b.Archive, dir, kase.Basename); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// run links the program once per pass and runs the case in its own
// directory.
func (c *Collector) run(ctx context.Context, kase runner.Case, linked map[string]string) (*runner.RunResult, string, error) {
	if c.Linker == nil || c.Runner == nil {
		return nil, "", errors.New("run requested without a linker and runner")
	}
	key := kase.Chapter + "/" + kase.Program
	exe, ok := linked[key]
	if !ok {
		res, err := c.Linker.Link(ctx, kase.Chapter, kase.Program, false)
		if err != nil {
			return nil, "", err
		}
		exe = res.Executable
		linked[key] = exe
	}
	res, err := c.Runner.Run(ctx, runner.Invocation{
		Executable: exe,
		WorkDir:    filepath.Dir(kase.InputPath),
		Basename:   kase.Basename,
		Case:       kase,
	})
	if err != nil {
		return nil, exe, err
	}
	return res, exe, nil
}

func headLines(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var b strings.Builder
	sc := bufio.NewScanner(f)
	for i := 0; i < n && sc.Scan(); i++ {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
