package modgraph

import (
	"errors"
	"fmt"
	"strings"
)

// InterfaceErrorKind distinguishes why a required interface is unavailable.
type InterfaceErrorKind string

const (
	// InterfaceNotFound means no unit in the library provides the interface.
	InterfaceNotFound InterfaceErrorKind = "NOT_FOUND"
	// InterfaceNotCompiled means a provider exists but its interface file
	// was not present when the dependent unit was about to compile.
	InterfaceNotCompiled InterfaceErrorKind = "NOT_COMPILED"
	// InterfaceDuplicate means two units provide the same interface.
	InterfaceDuplicate InterfaceErrorKind = "DUPLICATE"
)

// InterfaceError reports an unresolved interface dependency.
type InterfaceError struct {
	Kind      InterfaceErrorKind
	Unit      string // the unit requiring (or duplicating) the interface
	Interface string
	Path      string // expected interface file, for NOT_COMPILED
	Other     string // the first provider, for DUPLICATE
}

func (e *InterfaceError) Error() string {
	switch e.Kind {
	case InterfaceNotFound:
		return fmt.Sprintf("interface file not found: %s requires %q but no library unit provides it", e.Unit, e.Interface)
	case InterfaceNotCompiled:
		return fmt.Sprintf("interface file not yet compiled: %s requires %q, expected %s", e.Unit, e.Interface, e.Path)
	case InterfaceDuplicate:
		return fmt.Sprintf("interface %q provided by both %s and %s", e.Interface, e.Other, e.Unit)
	default:
		return fmt.Sprintf("interface %q unavailable for %s", e.Interface, e.Unit)
	}
}

// CycleError reports a dependency cycle among units.
type CycleError struct {
	Path []string // e.g. ["a.f03", "b.f03", "a.f03"]
}

func (e *CycleError) Error() string {
	return "cyclic module dependency: " + strings.Join(e.Path, " -> ")
}

// CompileError reports a unit the compiler rejected.
type CompileError struct {
	Unit        string
	Diagnostics string
	Err         error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %s: %v", e.Unit, e.Err)
	if d := strings.TrimSpace(e.Diagnostics); d != "" {
		msg += "\n" + d
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

// PreconditionError reports a missing input path.
type PreconditionError struct {
	What string
	Path string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Path)
}

// IsCycle reports whether err is a dependency cycle.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsInterfaceError reports whether err is an interface resolution error of
// the given kind.
func IsInterfaceError(err error, kind InterfaceErrorKind) bool {
	var ie *InterfaceError
	return errors.As(err, &ie) && ie.Kind == kind
}
