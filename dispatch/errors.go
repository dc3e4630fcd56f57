package dispatch

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidName = errors.New("formatter name must only contain alphanumeric characters, `_` or `-`")
	// ErrCommandNotFound is returned when the Command for a Formatter is not available.
	ErrCommandNotFound = errors.New("formatter command not found in PATH")
)

// UnsupportedLanguageError indicates a request carried a language token no
// configured formatter claims. No process is spawned for such requests.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("Language '%s' is not supported yet", e.Language)
}

// UnknownFormatterError indicates a request named a formatter which is not
// configured.
type UnknownFormatterError struct {
	Name string
}

func (e *UnknownFormatterError) Error() string {
	return fmt.Sprintf("Formatter '%s' is not configured", e.Name)
}

// UnmatchedFilenameError indicates a filename matched none of the configured
// include patterns.
type UnmatchedFilenameError struct {
	Filename string
}

func (e *UnmatchedFilenameError) Error() string {
	return fmt.Sprintf("Filename '%s' does not match any configured formatter", e.Filename)
}

// RejectionError indicates the formatter process ran but exited non-zero.
// Error returns the process's stderr verbatim so callers can relay the tool's
// own diagnostics untouched, falling back to the exit status when the tool
// was silent.
type RejectionError struct {
	Command  string
	Stderr   string
	ExitCode int
}

func (e *RejectionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}

	return e.Stderr
}

// TimeoutError indicates the formatter process exceeded the configured time
// limit and was interrupted.
type TimeoutError struct {
	Formatter string
	Limit     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Formatter, e.Limit)
}
