// Package toolchain runs the external compiler and archiver.
//
// The build packages depend only on the Toolchain interface; GNU drives
// gfortran and ar. Diagnostics are returned raw so callers can report the
// compiler's own text next to the failing unit.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CompileRequest compiles one unit into an object file. Interface files are
// read from and written to InterfaceDir.
type CompileRequest struct {
	Source       string
	Object       string
	InterfaceDir string
}

// LinkRequest links an entry source against the shared archive.
type LinkRequest struct {
	Entry        string
	Archive      string
	InterfaceDir string
	Output       string
}

// Toolchain compiles, archives and links. Every method returns the tool's
// combined output alongside any error.
type Toolchain interface {
	Compile(ctx context.Context, req CompileRequest) ([]byte, error)
	Archive(ctx context.Context, archive string, objects []string) ([]byte, error)
	Link(ctx context.Context, req LinkRequest) ([]byte, error)
	Version(ctx context.Context) (string, error)
}

// GNU drives a gfortran-compatible compiler and an ar-compatible archiver.
type GNU struct {
	Compiler string
	Flags    []string
	Archiver string
}

// NewGNU creates a GNU toolchain.
func NewGNU(compiler string, flags []string, archiver string) *GNU {
	return &GNU{Compiler: compiler, Flags: flags, Archiver: archiver}
}

// Compile runs `<compiler> <flags> -c -J <mod> -I <mod> <src> -o <obj>`.
func (g *GNU) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	args := append([]string{}, g.Flags...)
	args = append(args, "-c", "-J", req.InterfaceDir, "-I", req.InterfaceDir, req.Source, "-o", req.Object)
	return run(ctx, g.Compiler, args...)
}

// Archive runs `<archiver> rcs <archive> <objects...>`.
func (g *GNU) Archive(ctx context.Context, archive string, objects []string) ([]byte, error) {
	args := append([]string{"rcs", archive}, objects...)
	return run(ctx, g.Archiver, args...)
}

// Link runs `<compiler> <flags> -I <mod> <entry> <archive> -o <output>`.
func (g *GNU) Link(ctx context.Context, req LinkRequest) ([]byte, error) {
	args := append([]string{}, g.Flags...)
	args = append(args, "-I", req.InterfaceDir, req.Entry, req.Archive, "-o", req.Output)
	return run(ctx, g.Compiler, args...)
}

// Version returns the first line of `<compiler> --version`.
func (g *GNU) Version(ctx context.Context) (string, error) {
	out, err := run(ctx, g.Compiler, "--version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return out.Bytes(), nil
}
