package harness

import (
	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/ir"
)

// TraceEvent is one executed flow step.
type TraceEvent struct {
	Seq         int64       `json:"seq"`
	Contract    string      `json:"contract"`
	ExecutionID string      `json:"execution_id"`
	Args        ir.IRObject `json:"args"`
	State       string      `json:"state"`
	Result      ir.IRObject `json:"result,omitempty"`
	Kind        string      `json:"kind,omitempty"`
	Message     string      `json:"message,omitempty"`
	Blocks      []string    `json:"blocks,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Chain is every block from genesis to tail.
	Chain []chain.Block `json:"chain"`

	// Errors describes each failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Chain:  []chain.Block{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
