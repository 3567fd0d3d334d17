package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunState is a state of the backup run state machine.
type RunState string

// Run states in the order a run passes through them.
const (
	StateIdle          RunState = "idle"
	StateWaking        RunState = "waking"
	StateConnecting    RunState = "connecting"
	StateResolvingRoot RunState = "resolving_root"
	StateDiscovering   RunState = "discovering"
	StateMaterializing RunState = "materializing_dirs"
	StateTransferring  RunState = "transferring"
	StateDone          RunState = "done"
	StateFailed        RunState = "failed"
	StateCancelled     RunState = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// RunResult summarizes one backup run.
type RunResult struct {
	State        RunState
	Device       string
	BackupRoot   string
	Directories  int
	TotalFiles   int
	Completed    int
	Failed       int
	BytesWritten int64
	Duration     time.Duration
	Error        *PhaseError // nil on success
}

// FileError is a transport or local I/O failure on a single path.
type FileError struct {
	Op   string // list, read, write, mkdir
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// PhaseError is the failure that terminated a run.
type PhaseError struct {
	Phase RunState
	Path  string // empty when the failure is not tied to a path
	Err   error
}

// NewPhaseError wraps err for phase, taking the path from a FileError if err carries one.
func NewPhaseError(phase RunState, err error) *PhaseError {
	pe := &PhaseError{Phase: phase, Err: err}
	var fe *FileError
	if errors.As(err, &fe) {
		pe.Path = fe.Path
	}
	return pe
}

func (e *PhaseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s failed at %s: %v", e.Phase, e.Path, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Cancelled reports whether the run stopped because its context was cancelled.
func (e *PhaseError) Cancelled() bool {
	return errors.Is(e.Err, context.Canceled)
}
