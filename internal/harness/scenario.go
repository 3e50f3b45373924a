package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/service"
)

// Scenario is a disguise round trip run against a scratch target and vault.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Policies is a directory of CUE policy files, relative to the scenario
	// file. Steps without inline transformations resolve their policy there.
	Policies string `yaml:"policies,omitempty"`

	// Now fixes the clock, as RFC 3339. Defaults to DefaultNow.
	Now string `yaml:"now,omitempty"`

	// Schema and Seed are SQL statements run against the empty target.
	Schema []string `yaml:"schema"`
	Seed   []string `yaml:"seed,omitempty"`

	// Vaults are generated before the flow runs.
	Vaults []VaultSetup `yaml:"vaults,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`

	dir string
}

// DefaultNow is the scenario clock when Now is unset.
var DefaultNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// VaultSetup creates a subject's vault and placeholder row.
type VaultSetup struct {
	VaultID    string   `yaml:"vault_id"`
	Email      string   `yaml:"email"`
	Table      string   `yaml:"table"`
	PrimaryKey string   `yaml:"primary_key,omitempty"`
	Fields     []string `yaml:"fields"`
	Values     []string `yaml:"values"`
}

// Step is one operation of the flow.
type Step struct {
	// Op is one of the Op constants.
	Op string `yaml:"op"`

	Policy  string `yaml:"policy,omitempty"`
	VaultID string `yaml:"vault_id,omitempty"`

	// Age overrides an expiration policy's age, or selects clearvault by age.
	Age *int `yaml:"age,omitempty"`

	// DeleteName selects clearvault by policy name with VaultID.
	DeleteName string `yaml:"delete_name,omitempty"`

	Transformations []ir.Transformation `yaml:"transformations,omitempty"`

	// Duration is the clock advance, in time.ParseDuration syntax.
	Duration string `yaml:"duration,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect constrains a step's outcome. Unset fields are not checked.
type Expect struct {
	// Error is the expected error code. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	Transformations *int `yaml:"transformations,omitempty"`
	Restored        *int `yaml:"restored,omitempty"`
	Disguises       *int `yaml:"disguises,omitempty"`
}

// Step ops.
const (
	OpApply      = "apply"
	OpPlan       = "plan"
	OpRecover    = "recover"
	OpClearVault = "clearvault"
	OpAdvance    = "advance"
)

// Assertion checks final target, vault or trace state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Table and Where select target rows for row_count and row_values.
	Table string `yaml:"table,omitempty"`
	Where string `yaml:"where,omitempty"`

	// Count is the expected number of rows, ledger entries or trace events.
	Count *int `yaml:"count,omitempty"`

	// Expect maps column names to display values every selected row must
	// hold. NULL matches a null column.
	Expect map[string]string `yaml:"expect,omitempty"`

	VaultID string `yaml:"vault_id,omitempty"`

	// Op, Policy and Outcome filter trace events for trace_count.
	Op      string `yaml:"op,omitempty"`
	Policy  string `yaml:"policy,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Ops is the expected order of step ops for trace_order.
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion types.
const (
	AssertRowCount    = "row_count"
	AssertRowValues   = "row_values"
	AssertLedgerCount = "ledger_count"
	AssertTraceCount  = "trace_count"
	AssertTraceOrder  = "trace_order"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = filepath.Dir(path)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// PolicyDir returns the resolved policy directory, or "" if none is set.
func (s *Scenario) PolicyDir() string {
	if s.Policies == "" || filepath.IsAbs(s.Policies) {
		return s.Policies
	}
	return filepath.Join(s.dir, s.Policies)
}

// Clock returns the scenario's start time.
func (s *Scenario) Clock() (time.Time, error) {
	if s.Now == "" {
		return DefaultNow, nil
	}
	t, err := time.Parse(time.RFC3339, s.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("now: %w", err)
	}
	return t.UTC(), nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("schema list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := s.Clock(); err != nil {
		return err
	}
	if dir := s.PolicyDir(); dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("policy directory not found: %s", dir)
		}
	}

	for i, v := range s.Vaults {
		if v.VaultID == "" || v.Table == "" {
			return fmt.Errorf("vaults[%d]: vault_id and table are required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step *Step) error {
	switch step.Op {
	case OpApply, OpPlan, OpRecover:
		if step.Policy == "" || step.VaultID == "" {
			return fmt.Errorf("flow[%d]: %s needs policy and vault_id", i, step.Op)
		}
		if len(step.Transformations) > 0 && !inlinePolicy(step) {
			return fmt.Errorf("flow[%d]: inline transformations need apply with userscrub, anonymize or expiration", i)
		}
	case OpClearVault:
		if step.Age == nil && step.DeleteName == "" {
			return fmt.Errorf("flow[%d]: clearvault needs age or delete_name", i)
		}
	case OpAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("flow[%d]: advance: %w", i, err)
		}
	case "":
		return fmt.Errorf("flow[%d]: op is required", i)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
	}
	return nil
}

// inlinePolicy reports whether step can carry its own transformations.
func inlinePolicy(step *Step) bool {
	if step.Op != OpApply {
		return false
	}
	switch strings.ToLower(step.Policy) {
	case service.PolicyUserScrub, service.PolicyAnonymize, service.PolicyExpiration:
		return true
	}
	return false
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertRowCount:
		if a.Table == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: table and count are required for row_count", index)
		}
	case AssertRowValues:
		if a.Table == "" || a.Where == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: table, where and expect are required for row_values", index)
		}
	case AssertLedgerCount:
		if a.VaultID == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: vault_id and count are required for ledger_count", index)
		}
	case AssertTraceCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
