package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/hitcall/packages/core/runner"
)

// Exit codes for hitcall CLI
const (
	// ExitSuccess indicates the call completed, or no entry matched
	ExitSuccess = 0

	// ExitFailure indicates the call could not be prepared or its result not saved
	ExitFailure = 1

	// ExitParseError indicates a descriptor loading or validation error
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code for err. reported is set once the
// error has been printed by a formatter.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func reported(code int, err error) error {
	return &exitError{code: code, err: err, reported: true}
}

func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}

// callExitCode classifies an error returned by the runner.
func callExitCode(err error) int {
	var sendErr *runner.SendError
	if errors.As(err, &sendErr) {
		return ExitNetworkError
	}
	return ExitFailure
}
