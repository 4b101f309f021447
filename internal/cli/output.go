package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/migrate"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution, including a transfer with nothing to do
	ExitFailure      = 1 // A transfer or lookup failed with a classified error
	ExitCommandError = 2 // Command error (bad arguments, missing store, bad config)
)

// Error codes for failures outside the transfer error taxonomy.
const (
	CodeCommandError    = "CommandError"
	CodeInvalidArgument = "InvalidArgument"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Kind    string // Taxonomy kind, empty for command errors
	Message string
	Err     error
	// Reported is set once the error has been written to the output.
	Reported bool
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
// Returns ExitCommandError if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"` // taxonomy kind or CommandError
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data as JSON, or calls text to write the text form.
func (f *OutputFormatter) Success(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return err
}

// Fail reports err and returns the ExitError the command should return.
// Classified errors exit with ExitFailure; everything else is a command
// error.
func (f *OutputFormatter) Fail(err error, details any) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.Kind
		if code == "" {
			code = CodeCommandError
		}
		f.Error(code, exitErr.Error(), details)
		exitErr.Reported = true
		return exitErr
	}

	if kind := migrate.KindOf(err); kind != "" {
		msg := strings.TrimPrefix(err.Error(), string(kind)+": ")
		f.Error(string(kind), msg, detailsFor(err, details))
		return &ExitError{Code: ExitFailure, Kind: string(kind), Message: msg, Err: err, Reported: true}
	}

	code := CodeCommandError
	if migrate.IsSameDevice(err) {
		code = CodeInvalidArgument
	}
	f.Error(code, err.Error(), details)
	return &ExitError{Code: ExitCommandError, Message: err.Error(), Err: err, Reported: true}
}

// detailsFor adds structured context from the error chain to details.
func detailsFor(err error, details any) any {
	var mismatch *catalog.MismatchError
	if errors.As(err, &mismatch) && details == nil {
		return mismatch
	}
	var me *migrate.Error
	if errors.As(err, &me) && details == nil {
		return me
	}
	return details
}
