package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // deployment aborted, publish failure
	ExitCommandError = 2 // bad flags, unreadable config, missing paths
)

// Error codes surfaced in JSON output.
const (
	ErrCodeConfig  = "config"
	ErrCodeAnalyze = "analyze"
	ErrCodePublish = "publish"
	ErrCodeLedger  = "ledger"
	ErrCodeState   = "state"
)

// ExitError carries a process exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to an existing error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, defaulting to
// ExitFailure for plain errors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// Response is the JSON envelope every command emits in json mode.
type Response struct {
	Status string         `json:"status"` // "ok" | "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError details a failure in JSON output.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON reports whether the formatter is in JSON mode.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success emits data in the ok envelope (JSON mode only; text-mode
// commands print their own output).
func (f *OutputFormatter) Success(data any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(Response{Status: "ok", Data: data})
}

// Fail emits the error in the configured format and returns an
// ExitError carrying exitCode.
func (f *OutputFormatter) Fail(exitCode int, code string, err error) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		_ = enc.Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: err.Error()},
		})
	} else {
		fmt.Fprintf(f.errWriter(), "error [%s]: %v\n", code, err)
	}
	return WrapExitError(exitCode, code, err)
}

// Progressf prints a text-mode progress line. JSON mode routes it to
// the diagnostic writer so the JSON document stays parseable.
func (f *OutputFormatter) Progressf(format string, args ...any) {
	w := f.Writer
	if f.JSON() {
		w = f.errWriter()
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// Verbosef prints only in verbose mode, always to the diagnostic
// writer.
func (f *OutputFormatter) Verbosef(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
