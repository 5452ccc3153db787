// Package pipeline models a backup or restore run as a small linear state
// machine. Each run advances through its stages in order; any stage failure
// moves the machine to the terminal failed state carrying the failing stage,
// so callers can map the outcome to a distinct exit status.
package pipeline

import "fmt"

// Stage names one blocking step of a pipeline run.
type Stage string

const (
	StageExport   Stage = "export"
	StageCompress Stage = "compress"
	StageUpload   Stage = "upload"
	StageDownload Stage = "download"
	StageApply    Stage = "apply"
	StageCleanup  Stage = "cleanup"
)

// State is the progress marker of a run.
type State int

const (
	StateInit State = iota
	StateExported
	StateCompressed
	StateUploaded
	StateDownloaded
	StateApplied
	StateCleaned
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateExported:
		return "exported"
	case StateCompressed:
		return "compressed"
	case StateUploaded:
		return "uploaded"
	case StateDownloaded:
		return "downloaded"
	case StateApplied:
		return "applied"
	case StateCleaned:
		return "cleaned"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Error wraps a stage failure. It is terminal: no later stage runs and no
// earlier failure is downgraded.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s failed: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Fail wraps err as a terminal stage failure. A nil err returns nil so call
// sites can wrap unconditionally.
func Fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Stage: stage, Err: err}
}

// Machine tracks one run. States only move forward; a failure is terminal.
type Machine struct {
	state State
}

// New returns a machine in the initial state.
func New() *Machine { return &Machine{state: StateInit} }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Advance moves to next. Moving backwards or out of a terminal state panics:
// that is a programming error in the pipeline, not a runtime condition.
func (m *Machine) Advance(next State) {
	if m.state == StateFailed {
		panic("pipeline: advance after terminal failure")
	}
	if next <= m.state || next == StateFailed {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", m.state, next))
	}
	m.state = next
}

// Fail moves to the terminal failed state and returns the wrapped stage
// error, so pipelines can `return m.Fail(stage, err)` in one motion.
func (m *Machine) Fail(stage Stage, err error) error {
	m.state = StateFailed
	return Fail(stage, err)
}
