package api

import (
	"errors"
	"fmt"

	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/pipeline"
)

// Status ist das Ergebnis eines API-Aufrufs.
type Status int

const (
	StatusOK Status = iota
	StatusContextInvalid
	StatusRuntimeError
	StatusUpdateParameterFailed
	StatusInvalidParameterType
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusContextInvalid:
		return "CONTEXT_INVALID"
	case StatusRuntimeError:
		return "RUNTIME_ERROR"
	case StatusUpdateParameterFailed:
		return "UPDATE_PARAMETER_FAILED"
	case StatusInvalidParameterType:
		return "INVALID_PARAMETER_TYPE"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// RunStatus ist das Ergebnis von Run.
type RunStatus int

const (
	RunOK RunStatus = iota
	RunContextInvalid
	RunRuntimeError
	RunNoMoreData
	RunNotRunning
)

func (s RunStatus) String() string {
	switch s {
	case RunOK:
		return "OK"
	case RunContextInvalid:
		return "CONTEXT_INVALID"
	case RunRuntimeError:
		return "RUNTIME_ERROR"
	case RunNoMoreData:
		return "NO_MORE_DATA"
	case RunNotRunning:
		return "NOT_RUNNING"
	}
	return fmt.Sprintf("RunStatus(%d)", int(s))
}

// HandleError haelt Operation und Handle eines fehlgeschlagenen Aufrufs fest.
type HandleError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("api: %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *HandleError) Unwrap() error { return e.Err }

// statusOf ordnet einen Fehler dem Status-Code zu.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, pipeline.ErrReleased):
		return StatusContextInvalid
	case errors.Is(err, param.ErrInvalidParameterType), errors.Is(err, errWrongParameter):
		return StatusInvalidParameterType
	case errors.Is(err, param.ErrInvalidRange), errors.Is(err, param.ErrInvalidDistribution):
		return StatusUpdateParameterFailed
	}
	return StatusRuntimeError
}

func runStatusOf(err error) RunStatus {
	switch {
	case err == nil:
		return RunOK
	case errors.Is(err, pipeline.ErrNoMoreData):
		return RunNoMoreData
	case errors.Is(err, pipeline.ErrNotRunning):
		return RunNotRunning
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, pipeline.ErrReleased):
		return RunContextInvalid
	}
	return RunRuntimeError
}
