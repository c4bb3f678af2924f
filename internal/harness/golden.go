package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chainvault/internal/ir"
)

// Snapshot renders a run as canonical JSON: the execution trace plus every
// block of the chain, genesis first. With the harness's deterministic clock
// and ids the bytes are stable across runs.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, ev := range result.Trace {
		obj := ir.IRObject{
			"seq":          ir.IRInt(ev.Seq),
			"contract":     ir.IRString(ev.Contract),
			"execution_id": ir.IRString(ev.ExecutionID),
			"args":         ev.Args,
			"state":        ir.IRString(ev.State),
			"blocks":       stringArray(ev.Blocks),
		}
		if ev.Result != nil {
			obj["result"] = ev.Result
		}
		if ev.Kind != "" {
			obj["kind"] = ir.IRString(ev.Kind)
			obj["message"] = ir.IRString(ev.Message)
		}
		trace[i] = obj
	}

	blocks := make(ir.IRArray, len(result.Chain))
	for i, b := range result.Chain {
		blocks[i] = ir.IRObject{
			"id":        ir.IRInt(b.ID),
			"data":      b.Data.IR(),
			"prev_hash": ir.IRString(b.PrevHash),
			"hash":      ir.IRString(b.Hash),
			"timestamp": ir.IRInt(b.Timestamp),
		}
	}

	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(scenarioName),
		"trace":         trace,
		"chain":         blocks,
	})
}

func stringArray(ss []string) ir.IRArray {
	arr := make(ir.IRArray, len(ss))
	for i, s := range ss {
		arr[i] = ir.IRString(s)
	}
	return arr
}

// AssertGoldenIn compares the snapshot of result against
// dir/{scenarioName}.golden. Run the test with -update to regenerate it.
func AssertGoldenIn(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
