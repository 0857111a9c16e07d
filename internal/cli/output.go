package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pfemlab/pfemrun/internal/link"
	"github.com/pfemlab/pfemrun/internal/modgraph"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Success, including batches with recovered per-item failures
	ExitFailure      = 1 // The single requested run failed
	ExitCommandError = 2 // Configuration or fatal error (missing paths, cycles, build failures)
)

// Error codes reported in JSON error responses.
const (
	CodeConfig = "E001" // configuration, missing root or input paths
	CodeBuild  = "E002" // library build: cycles, interfaces, compiler errors
	CodeLink   = "E003" // program link and archive preconditions
	CodeRun    = "E004" // run preconditions or failed run
	CodeLedger = "E005" // ledger access
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an error to the JSON error code of its class.
func ErrorCode(err error) string {
	var (
		ce  *modgraph.CompileError
		cy  *modgraph.CycleError
		ie  *modgraph.InterfaceError
		le  *link.LinkError
		ae  *link.ArchiveError
		lpe *link.PreconditionError
		rpe *runner.PreconditionError
	)
	switch {
	case errors.As(err, &ce), errors.As(err, &cy), errors.As(err, &ie):
		return CodeBuild
	case errors.As(err, &le), errors.As(err, &ae), errors.As(err, &lpe):
		return CodeLink
	case errors.As(err, &rpe):
		return CodeRun
	default:
		return CodeConfig
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// textWriter is implemented by command results with a human-readable form.
type textWriter interface {
	WriteText(w io.Writer)
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	if tw, ok := data.(textWriter); ok {
		tw.WriteText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}
