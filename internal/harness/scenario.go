package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chainvault/internal/fault"
)

// Scenario is a scripted run: records to seed, contract executions with
// expected outcomes, and assertions over the final records and chain.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Setup seeds records before the flow. Setup writes must succeed.
	Setup []RecordStep `yaml:"setup,omitempty"`

	// Flow is the ordered list of contract executions.
	Flow []FlowStep `yaml:"flow"`

	// Assertions are evaluated after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// RecordStep saves one record.
type RecordStep struct {
	ID        string `yaml:"id"`
	Value     any    `yaml:"value"`
	Encrypted bool   `yaml:"encrypted,omitempty"`
}

// FlowStep executes one contract.
type FlowStep struct {
	// Execute is the registered contract name.
	Execute string `yaml:"execute"`

	// Args are the procedure arguments, without execution_id.
	Args map[string]any `yaml:"args"`

	// ID overrides the generated execution id.
	ID string `yaml:"id,omitempty"`

	// Expect checks the outcome. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected outcome of a flow step.
type ExpectClause struct {
	OK *bool `yaml:"ok,omitempty"`

	// Kind is the expected failure kind (e.g. PROCEDURE). Implies ok: false.
	Kind string `yaml:"kind,omitempty"`

	// Message must be a substring of the failure message.
	Message string `yaml:"message,omitempty"`

	// Result is matched as a subset of the result object.
	Result map[string]any `yaml:"result,omitempty"`
}

// wantOK reports whether the step is expected to succeed.
func (e *ExpectClause) wantOK() bool {
	if e == nil {
		return true
	}
	if e.OK != nil {
		return *e.OK
	}
	return e.Kind == "" && e.Message == ""
}

// Assertion checks the final records or chain.
type Assertion struct {
	Type string `yaml:"type"`

	// ID names the record (record_equals, record_attested).
	ID string `yaml:"id,omitempty"`

	// Expect is the exact expected record value (record_equals).
	Expect any `yaml:"expect,omitempty"`

	// BlockType filters blocks (block_count, block_contains).
	BlockType string `yaml:"block_type,omitempty"`

	// Body is matched as a subset of a block body (block_contains).
	Body map[string]any `yaml:"body,omitempty"`

	// Count is the expected number of blocks (block_count).
	Count *int `yaml:"count,omitempty"`

	// Contracts is the expected execution order (trace_order).
	Contracts []string `yaml:"contracts,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordEquals   = "record_equals"
	AssertRecordAttested = "record_attested"
	AssertChainValid     = "chain_valid"
	AssertBlockCount     = "block_count"
	AssertBlockContains  = "block_contains"
	AssertTraceOrder     = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos do not silently skip checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "harness.ParseScenario",
			fmt.Errorf("failed to parse YAML: %w", err))
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "harness.ParseScenario",
			fmt.Errorf("invalid scenario: %w", err))
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.ID == "" {
			return fmt.Errorf("setup[%d]: id is required", i)
		}
		if step.Value == nil {
			return fmt.Errorf("setup[%d]: value is required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Execute == "" {
			return fmt.Errorf("flow[%d]: execute is required", i)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if e := step.Expect; e != nil && e.OK != nil && *e.OK && (e.Kind != "" || e.Message != "") {
			return fmt.Errorf("flow[%d].expect: kind and message need ok: false", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRecordEquals:
		if a.ID == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: id and expect are required for record_equals", index)
		}
	case AssertRecordAttested:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for record_attested", index)
		}
	case AssertChainValid:
	case AssertBlockCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: a non-negative count is required for block_count", index)
		}
	case AssertBlockContains:
		if a.BlockType == "" {
			return fmt.Errorf("assertions[%d]: block_type is required for block_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Contracts) == 0 {
			return fmt.Errorf("assertions[%d]: contracts list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
