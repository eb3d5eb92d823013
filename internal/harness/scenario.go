package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/offstore/internal/config"
	"github.com/roach88/offstore/internal/storage"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Store configures the provider. Name defaults to the scenario name,
	// version to 1 and backend to local. Path is always chosen by the harness.
	Store StoreConfig `yaml:"store"`

	// Setup steps establish initial state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// StoreConfig is the part of config.Config a scenario may set.
type StoreConfig struct {
	Name       string            `yaml:"name,omitempty"`
	Version    int               `yaml:"version,omitempty"`
	Backend    config.Backend    `yaml:"backend,omitempty"`
	QuotaBytes int64             `yaml:"quota_bytes,omitempty"`
	Tables     map[string]string `yaml:"tables"`
}

// Step is one operation against the provider.
type Step struct {
	Op    string `yaml:"op"`
	Table string `yaml:"table,omitempty"`

	// Record is the create argument.
	Record map[string]any `yaml:"record,omitempty"`
	// Records is the update argument.
	Records []map[string]any `yaml:"records,omitempty"`
	// Where is the find criteria.
	Where map[string]any `yaml:"where,omitempty"`
	// IDs is the delete argument.
	IDs []string `yaml:"ids,omitempty"`
	// Version and Tables are the reopen arguments.
	Version int               `yaml:"version,omitempty"`
	Tables  map[string]string `yaml:"tables,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a flow step. Without Error the
// step must succeed.
type Expect struct {
	// Error is the expected storage error kind, e.g. "schema_mismatch".
	Error string `yaml:"error,omitempty"`

	// Count is the expected number of records returned by find.
	Count *int `yaml:"count,omitempty"`

	// Record is a subset of the record returned by create.
	Record map[string]any `yaml:"record,omitempty"`

	// Records is the exact, ordered result of find.
	Records []map[string]any `yaml:"records,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_count, trace_order, final_state.
	Type string `yaml:"type"`

	// Op is the operation counted by trace_count.
	Op string `yaml:"op,omitempty"`

	// Ops is the expected order for trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Table, Where and Expect are used by final_state. Expect is matched
	// as a subset against every returned record.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected occurrence count (trace_count) or record
	// count (final_state).
	Count *int `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpCreate = "create"
	OpFind   = "find"
	OpUpdate = "update"
	OpDelete = "delete"
	OpReopen = "reopen"
)

// Assertion types.
const (
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
	AssertFinalState = "final_state"
)

var knownKinds = map[string]bool{
	string(storage.KindConfig):          true,
	string(storage.KindNotImplemented):  true,
	string(storage.KindSchemaMismatch):  true,
	string(storage.KindQuotaExceeded):   true,
	string(storage.KindVersionConflict): true,
	string(storage.KindBlocked):         true,
	string(storage.KindVersionChanged):  true,
	string(storage.KindConstraint):      true,
	string(storage.KindInvalidRecord):   true,
	string(storage.KindSerialization):   true,
	string(storage.KindIO):              true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
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
	if len(s.Store.Tables) == 0 {
		return fmt.Errorf("store.tables is required and must be non-empty")
	}
	switch s.Store.Backend {
	case "", config.BackendLocal, config.BackendIndexedDB:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", s.Store.Backend)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	switch step.Op {
	case OpCreate, OpFind, OpUpdate, OpDelete:
		if step.Table == "" {
			return fmt.Errorf("%s: table is required for %s", where, step.Op)
		}
	case OpReopen:
		if step.Version < 1 {
			return fmt.Errorf("%s: version is required for reopen", where)
		}
	case "":
		return fmt.Errorf("%s: op is required", where)
	default:
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}

	if e := step.Expect; e != nil {
		if e.Error != "" && !knownKinds[e.Error] {
			return fmt.Errorf("%s.expect: unknown error kind %q", where, e.Error)
		}
		if (e.Count != nil || e.Records != nil) && step.Op != OpFind {
			return fmt.Errorf("%s.expect: count and records apply to find only", where)
		}
		if e.Record != nil && step.Op != OpCreate {
			return fmt.Errorf("%s.expect: record applies to create only", where)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if a.Count == nil && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: count or expect is required for final_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
