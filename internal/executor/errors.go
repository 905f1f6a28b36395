package executor

import (
	"errors"
	"fmt"
)

// ErrStale is the cancellation cause recorded when a document changed while
// its round was running.
var ErrStale = errors.New("document changed during round")

// Phase names the step of a node in which a fault occurred.
type Phase string

const (
	PhaseCollect Phase = "collect"
	PhaseApply   Phase = "apply"
)

// FaultError wraps an error returned, or a panic raised, by a pass.
type FaultError struct {
	Node  string
	Phase Phase
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("pass %s failed during %s: %v", e.Node, e.Phase, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// canceledError marks a node that stopped because its round was canceled by
// somebody else.
type canceledError struct {
	cause error
}

func (e *canceledError) Error() string {
	return fmt.Sprintf("round canceled: %v", e.cause)
}

func (e *canceledError) Unwrap() error {
	return e.cause
}
