package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation or scenario failure
	ExitCommandError = 2 // Command error (bad config, bad arguments, unreadable files)
)

// ExitError carries the process exit code for a failed command.
// Commands return it so main can exit with a meaningful status.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message, or the CLI error code for storage failures
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError, which covers
// cobra's own argument and flag errors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string    // "json" or "text"
	Writer    io.Writer // command output, including error envelopes
	ErrWriter io.Writer // verbose and diagnostic output; defaults to Writer
	Verbose   bool      // enables VerboseLog and error details in text mode
}

// CLIResponse is the JSON envelope for every command.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload: records, entries, counts
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E201", ...
	Kind    string `json:"kind,omitempty"`    // storage error kind, e.g. "constraint"
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
//
// In JSON mode data is wrapped in a CLIResponse with status "ok" and
// written as one line. HTML escaping is off so record values print as
// stored. In text mode data is printed with fmt.Println; callers that need
// a specific text layout pass a preformatted string.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
//
// Parameters:
//   - code: the CLI error code ("E001", "E201", ...)
//   - kind: the storage error kind, or "" for errors outside the storage layer
//   - message: human-readable message
//   - details: optional context, printed in text mode only with --verbose
//
// Errors go to Writer rather than ErrWriter so a JSON consumer reads
// exactly one envelope from stdout whether the command succeeded or not.
func (f *OutputFormatter) Error(code, kind, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Kind:    kind,
				Message: message,
				Details: details,
			},
		})
	}

	if kind != "" {
		fmt.Fprintf(f.Writer, "Error [%s %s]: %s\n", code, kind, message)
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	}
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a line only in verbose mode, to ErrWriter when set so
// JSON output stays clean.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
