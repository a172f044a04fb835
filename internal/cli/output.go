package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes shared by every medsync command.
const (
	ExitSuccess      = 0 // everything handled went through
	ExitFailure      = 1 // the command ran, but a record, report, scenario or lookup did not succeed
	ExitCommandError = 2 // the command could not run (bad input, no database, bad config)
)

// ErrorCode classifies a failed command in the JSON envelope.
type ErrorCode string

const (
	CodeNotFound      ErrorCode = "E_NOT_FOUND"      // no record or entity under the guid asked for
	CodeUnknownType   ErrorCode = "E_UNKNOWN_TYPE"   // type name not in the catalog
	CodeIngestFailed  ErrorCode = "E_INGEST_FAILED"  // at least one record ended FAILED
	CodeOutcomeFailed ErrorCode = "E_OUTCOME_FAILED" // at least one report could not be applied
	CodeTestFailed    ErrorCode = "E_TEST_FAILED"    // at least one scenario diverged
)

// ExitError carries the process exit code for a command failure up to main.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
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

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried anywhere in err's chain, or
// ExitFailure when there is none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope every --format json command writes.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes why a command did not succeed.
type CLIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// OutputFormatter writes command results either as text or wrapped in a
// CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose lines; Writer when nil
	Verbose   bool
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// Success writes data as an ok response, or prints it as text.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Summary writes the JSON envelope of a batch command (ingest, outcome,
// test). An empty failure means the whole batch went through; otherwise the
// response is an error under code that still carries data.
func (f *OutputFormatter) Summary(data any, code ErrorCode, failure string) error {
	resp := CLIResponse{Status: "ok", Data: data}
	if failure != "" {
		resp.Status = "error"
		resp.Error = &CLIError{Code: code, Message: failure}
	}
	return f.encode(resp)
}

// Error writes an error response, or an "Error [CODE]: message" line.
// Details are printed in text mode only with --verbose.
func (f *OutputFormatter) Error(code ErrorCode, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports a lookup or domain failure and returns the ExitFailure error
// the command should end with.
func (f *OutputFormatter) Fail(code ErrorCode, message string) error {
	if err := f.Error(code, message, nil); err != nil {
		return err
	}
	return NewExitError(ExitFailure, message)
}

// VerboseLog prints a diagnostic line under --verbose. It goes to ErrWriter
// so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
