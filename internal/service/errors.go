package service

import (
	"errors"
	"fmt"
)

var ErrShuttingDown = errors.New("shutting down")

// SpawnError is returned when the build command could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("err starting command %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// WorkingCopyError carries the output of a failed fetch/reset.
type WorkingCopyError struct {
	Branch string
	Output string
	Err    error
}

func (e *WorkingCopyError) Error() string {
	return fmt.Sprintf("err updating working copy to origin/%s: %v", e.Branch, e.Err)
}

func (e *WorkingCopyError) Unwrap() error {
	return e.Err
}

type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("err running hook %s: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// ExitError reports a build command that ran but exited non-zero.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Status)
}
