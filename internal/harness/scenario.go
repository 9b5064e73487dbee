package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the frozen time a scenario starts at unless it names
// another.
var DefaultStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// Scenario defines an end to end fulfillment scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is the rule set file to run with, relative to the scenario
	// file. Empty means the built-in rules.
	Rules string `yaml:"rules,omitempty"`

	// Start is the frozen clock at the first step. Zero means DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Setup seeds the store before the flow.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow contains the steps to run, each with an optional expectation.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and store.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup lists the records written to the store before the flow runs.
type Setup struct {
	Products  []ProductFixture  `yaml:"products,omitempty"`
	Customers []CustomerFixture `yaml:"customers,omitempty"`
}

// ProductFixture is a product seeded by the setup. Status defaults to
// active.
type ProductFixture struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Partner string `yaml:"partner,omitempty"`
	Stock   int64  `yaml:"stock"`
	Min     int64  `yaml:"min,omitempty"`
	Max     int64  `yaml:"max,omitempty"`
	Status  string `yaml:"status,omitempty"`
}

// CustomerFixture is a customer seeded by the setup.
type CustomerFixture struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email,omitempty"`
}

// FlowStep is one step of the flow.
type FlowStep struct {
	// Invoke names the step, e.g. "order.create".
	Invoke string `yaml:"invoke"`

	// Args contains the step arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome. Nil means the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is "ok" or the expected error code (e.g. "INSUFFICIENT_STOCK").
	Case string `yaml:"case"`

	// Result contains expected result field values. Subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the event name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected event args (trace_contains). Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Table is the store table (final_state).
	Table string `yaml:"table,omitempty"`

	// Where selects the row (final_state). All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected event order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// CaseOK is the case of a step that succeeded.
const CaseOK = "ok"

// LoadScenario reads and parses a scenario YAML file. The rule set path is
// resolved relative to the scenario file. Returns an error if the file
// doesn't exist, is malformed, contains unknown fields (typos), or is
// missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}
	if scenario.Rules != "" {
		if _, err := os.Stat(scenario.Rules); err != nil {
			return nil, fmt.Errorf("invalid scenario: rule set not found: %s", scenario.Rules)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
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

	for i, p := range s.Setup.Products {
		if p.ID == "" {
			return fmt.Errorf("setup.products[%d]: id is required", i)
		}
		if p.Stock < 0 || p.Min < 0 || p.Max < 0 {
			return fmt.Errorf("setup.products[%d]: stock and thresholds must not be negative", i)
		}
	}
	for i, c := range s.Setup.Customers {
		if c.ID == "" {
			return fmt.Errorf("setup.customers[%d]: id is required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if _, ok := steps[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown step %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
