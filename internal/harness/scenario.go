package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/remote"
)

// Scenario is one cart test scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// SerializeItems runs the controller with per-item call serialization.
	SerializeItems bool `yaml:"serialize_items,omitempty"`

	Initial Initial `yaml:"initial,omitempty"`

	Steps []Step `yaml:"steps"`

	// Expect checks the final state. Only the fields given are checked.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions check the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Initial is the world before the controller starts.
type Initial struct {
	// User is signed in at start. Empty starts anonymous.
	User string `yaml:"user,omitempty"`

	// Snapshot is the persisted anonymous cart.
	Snapshot []cart.Record `yaml:"snapshot,omitempty"`

	// Remote maps user ids to their remote cart contents.
	Remote map[string][]cart.Record `yaml:"remote,omitempty"`
}

// Step is one scenario step. Exactly one field is set.
type Step struct {
	SignIn  string      `yaml:"sign_in,omitempty"`
	SignOut bool        `yaml:"sign_out,omitempty"`
	Add     *AddStep    `yaml:"add,omitempty"`
	Update  *UpdateStep `yaml:"update,omitempty"`
	Remove  string      `yaml:"remove,omitempty"`
	Clear   bool        `yaml:"clear,omitempty"`
	Sync    bool        `yaml:"sync,omitempty"`
	Fail    *FailStep   `yaml:"fail,omitempty"`
	Recover string      `yaml:"recover,omitempty"`
	Pause   string      `yaml:"pause,omitempty"`
	Resume  string      `yaml:"resume,omitempty"`
	Flush   bool        `yaml:"flush,omitempty"`
}

type AddStep struct {
	Item     cart.Record `yaml:"item"`
	Quantity int         `yaml:"quantity"`
}

type UpdateStep struct {
	ID       string `yaml:"id"`
	Quantity int    `yaml:"quantity"`
}

// FailStep scripts failures of a remote operation.
type FailStep struct {
	Op string `yaml:"op"`
	// Times is how many upcoming calls fail. Default 1.
	Times int `yaml:"times,omitempty"`
	// Always fails every call until a recover step.
	Always bool `yaml:"always,omitempty"`
	// Status and Message shape the error. Default 503 "service unavailable".
	Status  int    `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Expect lists final-state expectations.
type Expect struct {
	Items         *[]ItemExpect           `yaml:"items,omitempty"`
	TotalItems    *int                    `yaml:"total_items,omitempty"`
	Subtotal      string                  `yaml:"subtotal,omitempty"`
	SyncStatus    string                  `yaml:"sync_status,omitempty"`
	Error         *bool                   `yaml:"error,omitempty"`
	ErrorContains string                  `yaml:"error_contains,omitempty"`
	Loading       *bool                   `yaml:"loading,omitempty"`
	Phase         string                  `yaml:"phase,omitempty"`
	Snapshot      *SnapshotExpect         `yaml:"snapshot,omitempty"`
	Remote        map[string][]LineExpect `yaml:"remote,omitempty"`
	Calls         map[string]int          `yaml:"calls,omitempty"`
}

type ItemExpect struct {
	ID       string `yaml:"id"`
	Quantity int    `yaml:"quantity"`
}

type SnapshotExpect struct {
	Present    bool `yaml:"present"`
	TotalItems *int `yaml:"total_items,omitempty"`
}

type LineExpect struct {
	Product  string `yaml:"product"`
	Quantity int    `yaml:"quantity"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, notice.
	Type string `yaml:"type"`

	// Action is a reducer action kind (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Item narrows trace_contains and trace_count to one item id.
	Item string `yaml:"item,omitempty"`

	// Actions is the expected order of action kinds (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kind, Op and Contains select a notice (notice).
	Kind     string `yaml:"kind,omitempty"`
	Op       string `yaml:"op,omitempty"`
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertNotice        = "notice"
)

var remoteOps = map[string]bool{
	string(remote.OpFetchCart):  true,
	string(remote.OpAddItem):    true,
	string(remote.OpUpdateItem): true,
	string(remote.OpRemoveItem): true,
	string(remote.OpClearCart):  true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected.
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
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps must contain at least one step")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
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

func validateStep(index int, s Step) error {
	set := 0
	for _, ok := range []bool{
		s.SignIn != "", s.SignOut, s.Add != nil, s.Update != nil, s.Remove != "",
		s.Clear, s.Sync, s.Fail != nil, s.Recover != "", s.Pause != "", s.Resume != "", s.Flush,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case s.Add != nil && len(s.Add.Item) == 0:
		return fmt.Errorf("steps[%d]: add.item is required", index)
	case s.Update != nil && s.Update.ID == "":
		return fmt.Errorf("steps[%d]: update.id is required", index)
	case s.Fail != nil:
		if !remoteOps[s.Fail.Op] {
			return fmt.Errorf("steps[%d]: unknown remote op %q", index, s.Fail.Op)
		}
		if s.Fail.Times < 0 {
			return fmt.Errorf("steps[%d]: fail.times must be non-negative", index)
		}
	}
	for _, op := range []string{s.Recover, s.Pause, s.Resume} {
		if op != "" && !remoteOps[op] {
			return fmt.Errorf("steps[%d]: unknown remote op %q", index, op)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
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
	case AssertNotice:
		if a.Kind == "" && a.Op == "" && a.Contains == "" {
			return fmt.Errorf("assertions[%d]: notice needs kind, op or contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
