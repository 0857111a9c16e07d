package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/pfemlab/pfemrun/internal/toolchain"
)

var fakeModuleRe = regexp.MustCompile(`(?im)^\s*module\s+([a-z_]\w*)\s*$`)

// FakeToolchain implements toolchain.Toolchain without a compiler. Compile
// writes an object file and one .mod file per MODULE declared in the source;
// Link writes Program as an executable shell script.
type FakeToolchain struct {
	mu sync.Mutex

	// FailOn maps a source base name to the diagnostic its compile emits.
	FailOn map[string]string
	// OmitInterfaces suppresses .mod output, simulating a compiler that
	// did not produce an interface file.
	OmitInterfaces bool
	// Program is the script body written by Link. Defaults to PFEMProgram.
	Program string

	Compiled []string // source base names, in compile order
	Archives int
	Linked   []string // entry base names
}

var _ toolchain.Toolchain = (*FakeToolchain)(nil)

// Compile implements toolchain.Toolchain.
func (f *FakeToolchain) Compile(_ context.Context, req toolchain.CompileRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := filepath.Base(req.Source)
	f.Compiled = append(f.Compiled, base)
	if diag, ok := f.FailOn[base]; ok {
		return []byte(diag), fmt.Errorf("fake compiler: exit status 1")
	}

	src, err := os.ReadFile(req.Source)
	if err != nil {
		return []byte(err.Error()), err
	}
	if err := os.WriteFile(req.Object, []byte("obj:"+base), 0o644); err != nil {
		return nil, err
	}
	if f.OmitInterfaces {
		return nil, nil
	}
	for _, m := range fakeModuleRe.FindAllStringSubmatch(string(src), -1) {
		name := strings.ToLower(m[1])
		if name == "procedure" {
			continue
		}
		mod := filepath.Join(req.InterfaceDir, name+".mod")
		if err := os.WriteFile(mod, []byte("mod:"+name), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// Archive implements toolchain.Toolchain.
func (f *FakeToolchain) Archive(_ context.Context, archive string, objects []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Archives++
	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = filepath.Base(o)
	}
	return nil, os.WriteFile(archive, []byte(strings.Join(names, "\n")), 0o644)
}

// Link implements toolchain.Toolchain.
func (f *FakeToolchain) Link(_ context.Context, req toolchain.LinkRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Linked = append(f.Linked, filepath.Base(req.Entry))
	if diag, ok := f.FailOn[filepath.Base(req.Entry)]; ok {
		return []byte(diag), fmt.Errorf("fake linker: exit status 1")
	}
	body := f.Program
	if body == "" {
		body = PFEMProgram
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(req.Output, []byte("#!/bin/sh\n"+body), 0o755)
}

// Version implements toolchain.Toolchain.
func (f *FakeToolchain) Version(context.Context) (string, error) {
	return "FakeFortran 1.0", nil
}

// CompiledUnits returns a copy of the compile log.
func (f *FakeToolchain) CompiledUnits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Compiled...)
}
