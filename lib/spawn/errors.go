// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawn

import (
	"errors"
	"fmt"
)

// InfrastructureError reports that a backend could not run a spawn for
// reasons unrelated to the command itself. Fallback decorators react to
// this error type only.
type InfrastructureError struct {
	// Backend is the variant that failed.
	Backend Kind

	// Err is the underlying cause.
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s execution failed: %v", e.Backend, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infrastructure wraps err as an infrastructure failure of backend. A nil
// err returns nil.
func Infrastructure(backend Kind, err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureError{Backend: backend, Err: err}
}

// IsInfrastructure reports whether err is, or wraps, an
// InfrastructureError.
func IsInfrastructure(err error) bool {
	var infrastructureError *InfrastructureError
	return errors.As(err, &infrastructureError)
}

// ExitError carries a non-zero exit code out of a binary's run function
// so main can exit with it.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError checks if an error is an ExitError and returns the code.
func IsExitError(err error) (int, bool) {
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code, true
	}
	return 0, false
}

// FailureMessage formats an execution failure for the user. With verbose
// set, the full command line is included so the failing command can be
// reproduced by hand.
func FailureMessage(spawn *Spawn, cause error, verbose bool) string {
	label := spawn.Mnemonic
	if label == "" && len(spawn.Args) > 0 {
		label = spawn.Args[0]
	}
	message := fmt.Sprintf("%s failed: %v", label, cause)
	if verbose {
		message += "\n  command: " + spawn.CommandLine()
	}
	return message
}

// Failed wraps cause for a spawn that could not be run to completion.
// The error text is FailureMessage(spawn, cause, verbose); errors.Is and
// errors.As see through to cause.
func Failed(spawn *Spawn, cause error, verbose bool) error {
	if cause == nil {
		return nil
	}
	return &failedError{message: FailureMessage(spawn, cause, verbose), cause: cause}
}

type failedError struct {
	message string
	cause   error
}

func (e *failedError) Error() string { return e.message }

func (e *failedError) Unwrap() error { return e.cause }
