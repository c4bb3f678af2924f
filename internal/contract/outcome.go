package contract

import (
	"fmt"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// State is the lifecycle position of one execution.
type State string

const (
	StatePending    State = "pending"
	StateReading    State = "reading"
	StateComputing  State = "computing"
	StateCommitting State = "committing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether s is Done or Failed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Failure describes why an execution failed.
//
// Err is the procedure's (or runtime's) error, unchanged; Failure unwraps
// to it so errors.Is and errors.As reach the original.
type Failure struct {
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// failureFrom classifies err. Errors that already carry a fault kind keep
// it; anything else raised by a procedure is a PROCEDURE failure.
func failureFrom(err error) *Failure {
	kind := fault.KindOf(err)
	if kind == "" {
		kind = fault.KindProcedure
	}
	msg := err.Error()
	var fe *fault.Error
	if asFault(err, &fe) && fe.Message != "" {
		msg = fe.Message
	}
	return &Failure{Kind: kind, Message: msg, Err: err}
}

// Outcome is the result of one execution.
type Outcome struct {
	ExecutionID string      `json:"execution_id"`
	Contract    string      `json:"contract"`
	State       State       `json:"state"`
	Result      ir.IRObject `json:"result,omitempty"`
	Failure     *Failure    `json:"failure,omitempty"`
	// Blocks lists the hashes of blocks the execution appended, in order.
	Blocks []string `json:"blocks,omitempty"`
}

// OK reports whether the execution finished successfully.
func (o Outcome) OK() bool {
	return o.State == StateDone && o.Failure == nil
}

// Err returns the failure as an error, or nil.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}
