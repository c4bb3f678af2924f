package contract

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/fifo"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

// DefaultDedupWindow is how long an execution id is remembered.
const DefaultDedupWindow = 10 * time.Minute

// Observer is notified of every state transition of every execution.
// It is called from the goroutine making the transition and must not block.
type Observer func(executionID string, state State)

// Runtime serializes contract executions through one FIFO worker.
//
// Thread-safety model:
//   - Execute (via SmartContract): safe from any goroutine
//   - Close: safe to call more than once
type Runtime struct {
	queue     *fifo.Queue[*execution]
	seen      *cache.Cache
	window    time.Duration
	maxWrites int
	logger    *slog.Logger
	observer  Observer

	closeOnce sync.Once
	done      chan struct{}
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithDedupWindow sets how long execution ids are remembered.
func WithDedupWindow(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.window = d
	}
}

// WithMaxWrites sets the per-execution write quota. Zero disables it.
func WithMaxWrites(n int) RuntimeOption {
	return func(r *Runtime) {
		r.maxWrites = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithObserver registers a state transition observer.
func WithObserver(o Observer) RuntimeOption {
	return func(r *Runtime) {
		r.observer = o
	}
}

// NewRuntime creates a runtime and starts its worker.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		queue:     fifo.New[*execution](),
		window:    DefaultDedupWindow,
		maxWrites: DefaultMaxWrites,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.window <= 0 {
		r.window = DefaultDedupWindow
	}
	r.seen = cache.New(r.window, 2*r.window)

	go func() {
		defer close(r.done)
		r.queue.Serve(r.run)
	}()
	return r
}

// Close stops accepting executions and waits for queued ones to finish.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.queue.Close()
		<-r.done
	})
}

// Pending returns the number of queued executions.
func (r *Runtime) Pending() int {
	return r.queue.Len()
}

// execution is one queued Execute call. Once dequeued it is owned by the
// worker goroutine.
type execution struct {
	id       string
	contract *SmartContract
	args     ir.IRObject
	ctx      context.Context
	quota    *writeQuota
	observer Observer

	mu     sync.Mutex
	state  State
	blocks []string

	reply chan Outcome // buffered, size 1
}

func (e *execution) transition(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	if e.observer != nil {
		e.observer(e.id, s)
	}
}

// beginWrite charges one write against the quota and moves the execution
// into Committing on its first write.
func (e *execution) beginWrite() error {
	if err := e.quota.Check(e.id); err != nil {
		return err
	}
	e.mu.Lock()
	first := e.state == StateComputing
	e.mu.Unlock()
	if first {
		e.transition(StateCommitting)
	}
	return nil
}

func (e *execution) recordBlock(hash string) {
	e.mu.Lock()
	e.blocks = append(e.blocks, hash)
	e.mu.Unlock()
}

func (e *execution) outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Outcome{
		ExecutionID: e.id,
		Contract:    e.contract.name,
		State:       e.state,
		Blocks:      append([]string(nil), e.blocks...),
	}
}

// submit dedups the execution id and queues the execution.
func (r *Runtime) submit(ctx context.Context, c *SmartContract, id string, args ir.IRObject) (Outcome, error) {
	const op = "contract.Execute"
	out := Outcome{ExecutionID: id, Contract: c.name, State: StateFailed}

	if err := r.seen.Add(id, struct{}{}, cache.DefaultExpiration); err != nil {
		out.Failure = failureFrom(fault.New(fault.KindInvalidArgument, op,
			fmt.Sprintf("duplicate execution id %q", id)))
		return out, out.Err()
	}

	e := &execution{
		id:       id,
		contract: c,
		args:     args,
		ctx:      context.WithoutCancel(ctx),
		quota:    newWriteQuota(r.maxWrites),
		observer: r.observer,
		reply:    make(chan Outcome, 1),
	}
	e.transition(StatePending)

	if !r.queue.Enqueue(e) {
		r.seen.Delete(id)
		out.Failure = failureFrom(fault.New(fault.KindClosed, op, "runtime is closed"))
		return out, out.Err()
	}

	select {
	case res := <-e.reply:
		return res, res.Err()
	case <-ctx.Done():
		out.State = StatePending
		return out, ctx.Err()
	}
}

// run executes one procedure. Called only from the worker goroutine.
func (r *Runtime) run(e *execution) {
	c := e.contract
	e.transition(StateReading)
	call := &Call{
		ExecutionID: e.id,
		Contract:    c.name,
		Args:        e.args,
		View:        NewReadView(c.caps.Storage),
		Definition:  c.definition,
	}
	if c.caps.Storage != nil {
		call.Storage = execStorage{inner: c.caps.Storage, exec: e}
	}
	if c.caps.Chain != nil {
		call.Chain = execChain{inner: c.caps.Chain, exec: e}
	}

	e.transition(StateComputing)
	result, err := r.invoke(e.ctx, c.procedure, call)

	if err != nil {
		e.transition(StateFailed)
		out := e.outcome()
		out.Failure = failureFrom(err)
		r.logger.Info("execution failed",
			"contract", c.name,
			"execution_id", e.id,
			"kind", out.Failure.Kind,
			"error", err,
		)
		e.reply <- out
		return
	}

	if result == nil {
		result = ir.IRObject{}
	}
	e.transition(StateDone)
	out := e.outcome()
	out.Result = result
	r.logger.Debug("execution done", "contract", c.name, "execution_id", e.id, "blocks", len(out.Blocks))
	e.reply <- out
}

// invoke calls the procedure, turning a panic into a PROCEDURE error.
func (r *Runtime) invoke(ctx context.Context, proc Procedure, call *Call) (result ir.IRObject, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("procedure panicked",
				"contract", call.Contract,
				"execution_id", call.ExecutionID,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			result = nil
			err = fault.New(fault.KindProcedure, "contract.Execute", fmt.Sprintf("procedure panicked: %v", p))
		}
	}()
	return proc(ctx, call)
}

// execStorage routes a procedure's storage writes through its execution.
type execStorage struct {
	inner Storage
	exec  *execution
}

func (s execStorage) SaveData(ctx context.Context, id string, value ir.IRValue, opts store.SaveOptions) (store.WriteReceipt, error) {
	if err := s.exec.beginWrite(); err != nil {
		return store.WriteReceipt{}, err
	}
	receipt, err := s.inner.SaveData(ctx, id, value, opts)
	if err == nil {
		s.exec.recordBlock(receipt.BlockHash)
	}
	return receipt, err
}

func (s execStorage) LoadData(ctx context.Context, id string) (ir.IRValue, error) {
	return s.inner.LoadData(ctx, id)
}

// execChain routes a procedure's block appends through its execution.
type execChain struct {
	inner Chain
	exec  *execution
}

func (c execChain) AddBlock(ctx context.Context, data ir.BlockData) (chain.Receipt, error) {
	if err := c.exec.beginWrite(); err != nil {
		return chain.Receipt{}, err
	}
	receipt, err := c.inner.AddBlock(ctx, data)
	if err == nil {
		c.exec.recordBlock(receipt.Hash)
	}
	return receipt, err
}

func (c execChain) ReadBlock(ctx context.Context, hash string) (chain.Block, error) {
	return c.inner.ReadBlock(ctx, hash)
}

func (c execChain) VerifyBlock(ctx context.Context, hash string) bool {
	return c.inner.VerifyBlock(ctx, hash)
}
