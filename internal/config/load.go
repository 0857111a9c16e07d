package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// fileConfig mirrors pfemrun.yaml. Pointers distinguish "absent" from zero.
type fileConfig struct {
	SourceDir  *string `yaml:"source_dir"`
	LibraryDir *string `yaml:"library_dir"`
	BuildDir   *string `yaml:"build_dir"`
	BinDir     *string `yaml:"bin_dir"`
	CaseDir    *string `yaml:"case_dir"`
	BundleDir  *string `yaml:"bundle_dir"`
	SweepDir   *string `yaml:"sweep_dir"`
	Ledger     *string `yaml:"ledger"`

	SourceExts []string `yaml:"source_exts"`
	InputExt   *string  `yaml:"input_ext"`
	OutputExts []string `yaml:"output_exts"`

	Toolchain *struct {
		Compiler    *string  `yaml:"compiler"`
		Flags       []string `yaml:"flags"`
		Archiver    *string  `yaml:"archiver"`
		ArchiveName *string  `yaml:"archive_name"`
	} `yaml:"toolchain"`

	Library *struct {
		Bootstrap    []string            `yaml:"bootstrap"`
		External     []string            `yaml:"external"`
		DeclaredDeps map[string][]string `yaml:"declared_deps"`
	} `yaml:"library"`

	Bundle *struct {
		ReadMarker    *string  `yaml:"read_marker"`
		ContextRadius *int     `yaml:"context_radius"`
		ResHeadLines  *int     `yaml:"res_head_lines"`
		HelperSources []string `yaml:"helper_sources"`
	} `yaml:"bundle"`

	Run *struct {
		Protocol *string `yaml:"protocol"`
		Timeout  *string `yaml:"timeout"`
	} `yaml:"run"`

	Sweep *struct {
		Workers *int `yaml:"workers"`
	} `yaml:"sweep"`

	Programs map[string]struct {
		Fields map[string]string `yaml:"fields"`
	} `yaml:"programs"`
}

// Load returns the configuration for root. When path is empty the default
// file name is looked up at root and its absence is not an error. An
// explicitly named file must exist.
func Load(root, path string) (Config, error) {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	info, err := os.Stat(root)
	if err != nil {
		return Config{}, fmt.Errorf("harness root not found: %s", root)
	}
	if !info.IsDir() {
		return Config{}, fmt.Errorf("harness root is not a directory: %s", root)
	}

	cfg := Default(root)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, DefaultFileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	return Parse(cfg, data)
}

// Parse overlays YAML data onto base after validating it against the schema.
func Parse(base Config, data []byte) (Config, error) {
	if err := validate(data); err != nil {
		return Config{}, err
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return merge(base, fc)
}

// validate checks the raw document against the embedded CUE schema.
func validate(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func merge(cfg Config, fc fileConfig) (Config, error) {
	setString(&cfg.SourceDir, fc.SourceDir)
	setString(&cfg.LibraryDir, fc.LibraryDir)
	setString(&cfg.BuildDir, fc.BuildDir)
	setString(&cfg.BinDir, fc.BinDir)
	setString(&cfg.CaseDir, fc.CaseDir)
	setString(&cfg.BundleDir, fc.BundleDir)
	setString(&cfg.SweepDir, fc.SweepDir)
	setString(&cfg.Ledger, fc.Ledger)
	setString(&cfg.InputExt, fc.InputExt)
	if len(fc.SourceExts) > 0 {
		cfg.SourceExts = fc.SourceExts
	}
	if len(fc.OutputExts) > 0 {
		cfg.OutputExts = fc.OutputExts
	}

	if t := fc.Toolchain; t != nil {
		setString(&cfg.Toolchain.Compiler, t.Compiler)
		setString(&cfg.Toolchain.Archiver, t.Archiver)
		setString(&cfg.Toolchain.ArchiveName, t.ArchiveName)
		if t.Flags != nil {
			cfg.Toolchain.Flags = t.Flags
		}
	}

	if l := fc.Library; l != nil {
		if l.Bootstrap != nil {
			cfg.Library.Bootstrap = l.Bootstrap
		}
		if l.External != nil {
			cfg.Library.External = l.External
		}
		if l.DeclaredDeps != nil {
			cfg.Library.DeclaredDeps = l.DeclaredDeps
		}
	}

	if b := fc.Bundle; b != nil {
		setString(&cfg.Bundle.ReadMarker, b.ReadMarker)
		setInt(&cfg.Bundle.ContextRadius, b.ContextRadius)
		setInt(&cfg.Bundle.ResHeadLines, b.ResHeadLines)
		if b.HelperSources != nil {
			cfg.Bundle.HelperSources = b.HelperSources
		}
	}

	if r := fc.Run; r != nil {
		setString(&cfg.Run.Protocol, r.Protocol)
		if r.Timeout != nil {
			d, err := time.ParseDuration(*r.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("invalid config: run.timeout: %w", err)
			}
			cfg.Run.Timeout = d
		}
	}

	if s := fc.Sweep; s != nil {
		setInt(&cfg.Sweep.Workers, s.Workers)
	}

	if len(fc.Programs) > 0 {
		programs := make(map[string]ProgramConfig, len(fc.Programs))
		for name, p := range fc.Programs {
			programs[name] = ProgramConfig{Fields: p.Fields}
		}
		cfg.Programs = programs
	}

	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
