package contract

import (
	"context"
	"fmt"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

// Storage is the record store capability handed to procedures.
type Storage interface {
	SaveData(ctx context.Context, id string, value ir.IRValue, opts store.SaveOptions) (store.WriteReceipt, error)
	LoadData(ctx context.Context, id string) (ir.IRValue, error)
}

// Chain is the ledger capability handed to procedures.
type Chain interface {
	AddBlock(ctx context.Context, data ir.BlockData) (chain.Receipt, error)
	ReadBlock(ctx context.Context, hash string) (chain.Block, error)
	VerifyBlock(ctx context.Context, hash string) bool
}

// Capabilities are the write paths a contract is built with.
type Capabilities struct {
	Storage Storage
	Chain   Chain
}

// Procedure is a contract's business logic. It reads through call.View,
// writes through call.Storage and call.Chain, and returns a result object
// or an error (typically from Reject).
type Procedure func(ctx context.Context, call *Call) (ir.IRObject, error)

// Call is everything one execution of a procedure can see.
type Call struct {
	ExecutionID string
	Contract    string
	Args        ir.IRObject
	View        ReadView
	Storage     Storage
	Chain       Chain
	// Definition is the hash of the contract-definition block the contract
	// was loaded from, or "" for a contract built directly.
	Definition string
}

// SmartContract binds a named procedure to its capabilities and the runtime
// that serializes its executions. Building one executes nothing.
type SmartContract struct {
	name       string
	version    string
	procedure  Procedure
	caps       Capabilities
	runtime    *Runtime
	definition string
}

// New binds def's procedure to caps on rt.
func New(rt *Runtime, def Definition, caps Capabilities) *SmartContract {
	return &SmartContract{
		name:      def.Name,
		version:   def.Version,
		procedure: def.Procedure,
		caps:      caps,
		runtime:   rt,
	}
}

// Name returns the contract name.
func (c *SmartContract) Name() string { return c.name }

// Version returns the contract's logic version label.
func (c *SmartContract) Version() string { return c.version }

// CodeRef returns the content-addressable reference of the contract's logic.
func (c *SmartContract) CodeRef() string { return ir.CodeRef(c.name, c.version) }

// Definition returns the hash of the definition block the contract was
// loaded from, or "".
func (c *SmartContract) Definition() string { return c.definition }

// Execute runs the procedure with args once every earlier execution on the
// runtime has finished.
//
// args must carry a string "execution_id"; an id already seen within the
// runtime's dedup window is rejected without running anything. The
// returned error is Outcome.Err(), or ctx.Err() if the caller stopped
// waiting. An execution that was queued runs to completion either way.
func (c *SmartContract) Execute(ctx context.Context, args ir.IRObject) (Outcome, error) {
	const op = "contract.Execute"
	out := Outcome{Contract: c.name, State: StateFailed}

	if c.runtime == nil || c.procedure == nil {
		out.Failure = failureFrom(fault.New(fault.KindInvalidArgument, op,
			fmt.Sprintf("contract %q is not bound to a runtime and procedure", c.name)))
		return out, out.Err()
	}

	id, ok := args.String(ArgExecutionID)
	if !ok || id == "" {
		out.Failure = failureFrom(fault.New(fault.KindInvalidArgument, op,
			"argument \"execution_id\" must be a non-empty string"))
		return out, out.Err()
	}
	out.ExecutionID = id

	return c.runtime.submit(ctx, c, id, args.Clone())
}
