package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext gives assertions access to the node's chain and store.
type AssertionContext struct {
	Ctx   context.Context
	Chain *chain.Chain
	Store *store.Store
}

// EvaluateAssertions evaluates every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertRecordEquals, AssertRecordAttested, AssertChainValid, AssertBlockCount, AssertBlockContains:
			if actx == nil || actx.Chain == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a chain and store", i, a.Type)
				break
			}
			err = evaluateState(actx, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateState(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertRecordEquals:
		return assertRecordEquals(actx, a)
	case AssertRecordAttested:
		return assertRecordAttested(actx, a)
	case AssertChainValid:
		return assertChainValid(actx)
	case AssertBlockCount:
		return assertBlockCount(actx, a)
	default:
		return assertBlockContains(actx, a)
	}
}

func assertRecordEquals(actx *AssertionContext, a Assertion) error {
	want, err := ir.ToIRValue(a.Expect)
	if err != nil {
		return fmt.Errorf("record_equals %s: expect: %w", a.ID, err)
	}
	got, err := actx.Store.LoadData(actx.Ctx, a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertRecordEquals,
			Expected: fmt.Sprintf("record %s = %s", a.ID, render(want)),
			Actual:   err.Error(),
		}
	}
	if !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     AssertRecordEquals,
			Expected: fmt.Sprintf("record %s = %s", a.ID, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

func assertRecordAttested(actx *AssertionContext, a Assertion) error {
	rec, err := actx.Store.Record(actx.Ctx, a.ID)
	if err != nil {
		return &AssertionError{Type: AssertRecordAttested, Expected: "record " + a.ID, Actual: err.Error()}
	}
	value, err := actx.Store.LoadData(actx.Ctx, a.ID)
	if err != nil {
		return &AssertionError{Type: AssertRecordAttested, Expected: "readable record " + a.ID, Actual: err.Error()}
	}
	ok, err := actx.Store.Validate(actx.Ctx, a.ID, value, rec.BlockHash)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertRecordAttested,
			Expected: fmt.Sprintf("record %s attested by block %s", a.ID, rec.BlockHash),
			Actual:   "validation failed",
		}
	}
	return nil
}

func assertChainValid(actx *AssertionContext) error {
	report, err := actx.Chain.Verify(actx.Ctx, chain.VerifyOptions{})
	if err != nil {
		return err
	}
	if !report.Valid {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: "valid chain",
			Actual:   fmt.Sprintf("block %s: %s", report.BadHash, report.Reason),
		}
	}
	return nil
}

func assertBlockCount(actx *AssertionContext, a Assertion) error {
	blocks, err := matchingBlocks(actx, a.BlockType)
	if err != nil {
		return err
	}
	if len(blocks) != *a.Count {
		what := "blocks"
		if a.BlockType != "" {
			what = a.BlockType + " blocks"
		}
		return &AssertionError{
			Type:     AssertBlockCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", len(blocks), what),
		}
	}
	return nil
}

func assertBlockContains(actx *AssertionContext, a Assertion) error {
	want, err := ir.ToIRObject(a.Body)
	if err != nil {
		return fmt.Errorf("block_contains: body: %w", err)
	}
	blocks, err := matchingBlocks(actx, a.BlockType)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if matchSubset(b.Data.Body, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertBlockContains,
		Expected: fmt.Sprintf("%s block with body containing %s", a.BlockType, render(want)),
		Actual:   fmt.Sprintf("%d %s blocks, none matching", len(blocks), a.BlockType),
	}
}

func matchingBlocks(actx *AssertionContext, blockType string) ([]chain.Block, error) {
	all, err := actx.Chain.Blocks(actx.Ctx, 0)
	if err != nil {
		return nil, err
	}
	if blockType == "" {
		return all, nil
	}
	var out []chain.Block
	for _, b := range all {
		if string(b.Data.Type) == blockType {
			out = append(out, b)
		}
	}
	return out, nil
}

// assertTraceOrder checks the contracts appear in the trace in the given
// order. Other executions may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Contracts) && ev.Contract == a.Contracts[next] {
			next++
		}
	}
	if next == len(a.Contracts) {
		return nil
	}
	executed := make([]string, len(trace))
	for i, ev := range trace {
		executed[i] = ev.Contract
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("contracts in order: %v", a.Contracts),
		Actual:   fmt.Sprintf("executed: %v", executed),
	}
}

// matchSubset reports whether every field of want is present in got with an
// equal value. Nested objects match as subsets too.
func matchSubset(got, want ir.IRObject) bool {
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			return false
		}
		wo, wantObj := w.(ir.IRObject)
		if gotSub, gotObj := g.(ir.IRObject); wantObj && gotObj {
			if !matchSubset(gotSub, wo) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(g, w) {
			return false
		}
	}
	return true
}

func render(v ir.IRValue) string {
	if v == nil {
		return "<none>"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
