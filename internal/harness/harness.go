package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/config"
	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/node"
	"github.com/roach88/chainvault/internal/seal"
	"github.com/roach88/chainvault/internal/store"
	"github.com/roach88/chainvault/internal/testutil"
)

// ClockStep is the interval between consecutive clock readings.
const ClockStep = time.Millisecond

// Options configures a run.
type Options struct {
	// Keys seals encrypted records. A fresh pair is generated when nil.
	Keys *seal.KeyPair

	// Logger receives component logs. Discarded when nil.
	Logger *slog.Logger
}

// Harness executes one scenario against one node.
type Harness struct {
	node   *node.Node
	ids    *testutil.SequenceGenerator
	logger *slog.Logger
}

// Run executes scenario on a fresh node and returns the result.
//
// Execution flow:
//  1. Open a node on a memory chain and a temporary record database
//  2. Save the setup records
//  3. Execute flow steps, checking each expect clause
//  4. Evaluate assertions
//  5. Capture the chain for golden comparison
//
// An error is returned only when the run itself could not proceed; failed
// expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	keys := opts.Keys
	if keys == nil {
		var err error
		if keys, err = seal.Generate(seal.MinKeyBits); err != nil {
			return nil, fmt.Errorf("generate keys: %w", err)
		}
	}

	dir, err := os.MkdirTemp("", "chainvault-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir
	cfg.Chain.Backend = config.BackendMemory

	clock := testutil.NewStepClock(ClockStep)
	n, err := node.Open(ctx, cfg,
		node.WithKeys(keys),
		node.WithClock(clock.Now),
		node.WithLogger(logger),
		node.WithBlockStore(chain.NewMemoryStore()),
	)
	if err != nil {
		return nil, fmt.Errorf("open node: %w", err)
	}
	defer n.Close()

	h := &Harness{
		node:   n,
		ids:    testutil.NewSequenceGenerator("exec"),
		logger: logger,
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Chain: n.Chain, Store: n.Store}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	blocks, err := n.Chain.Blocks(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	// Blocks walks tail to genesis; the trace reads genesis first.
	for i := len(blocks) - 1; i >= 0; i-- {
		result.Chain = append(result.Chain, blocks[i])
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []RecordStep) error {
	for i, step := range setup {
		value, err := ir.ToIRValue(step.Value)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		w, err := h.node.Store.SaveData(ctx, step.ID, value, store.SaveOptions{Encrypted: step.Encrypted})
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		h.logger.Debug("setup record saved", "step", i, "id", step.ID, "block", w.BlockHash)
	}
	return nil
}

// executeFlow runs every step in order. Execution failures are outcomes to
// compare, not errors; only an unknown contract or malformed args abort.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		c, err := h.node.Contract(step.Execute)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		args, err := ir.ToIRObject(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: args: %w", i, err)
		}
		id := step.ID
		if id == "" {
			id = h.ids.Generate()
		}
		args[contract.ArgExecutionID] = ir.IRString(id)

		out, _ := c.Execute(ctx, args)

		event := TraceEvent{
			Seq:         int64(i + 1),
			Contract:    step.Execute,
			ExecutionID: id,
			Args:        args,
			State:       string(out.State),
			Result:      out.Result,
			Blocks:      out.Blocks,
		}
		if out.Failure != nil {
			event.Kind = string(out.Failure.Kind)
			event.Message = out.Failure.Message
		}
		result.Trace = append(result.Trace, event)

		for _, msg := range checkExpect(step.Expect, out) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Execute, msg))
		}

		h.logger.Debug("flow step completed",
			"step", i,
			"contract", step.Execute,
			"execution_id", id,
			"state", out.State,
		)
	}
	return nil
}

// checkExpect compares an outcome with its expect clause.
func checkExpect(expect *ExpectClause, out contract.Outcome) []string {
	var errs []string
	if expect.wantOK() != out.OK() {
		if out.OK() {
			errs = append(errs, "expected failure, execution succeeded")
		} else {
			errs = append(errs, fmt.Sprintf("expected success, got %s: %s", out.Failure.Kind, out.Failure.Message))
		}
		return errs
	}
	if expect == nil {
		return nil
	}

	if out.Failure != nil {
		if expect.Kind != "" && string(out.Failure.Kind) != expect.Kind {
			errs = append(errs, fmt.Sprintf("expected kind %s, got %s", expect.Kind, out.Failure.Kind))
		}
		if expect.Message != "" && !strings.Contains(out.Failure.Message, expect.Message) {
			errs = append(errs, fmt.Sprintf("expected message containing %q, got %q", expect.Message, out.Failure.Message))
		}
	}

	if expect.Result != nil {
		want, err := ir.ToIRObject(expect.Result)
		if err != nil {
			return append(errs, fmt.Sprintf("expect.result: %v", err))
		}
		if !matchSubset(out.Result, want) {
			errs = append(errs, fmt.Sprintf("expected result containing %s, got %s", render(want), render(out.Result)))
		}
	}
	return errs
}
