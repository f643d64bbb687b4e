package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an interception scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order, one clock millisecond apart.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Capture *CaptureStep `yaml:"capture,omitempty"`
	Select  *int         `yaml:"select,omitempty"`
	Edit    *string      `yaml:"edit,omitempty"`
	Execute *ResolveStep `yaml:"execute,omitempty"`
	Drop    *ResolveStep `yaml:"drop,omitempty"`
	Fail    *FaultStep   `yaml:"fail,omitempty"`
	Heal    bool         `yaml:"heal,omitempty"`
}

// CaptureStep appends one event to the connection.
type CaptureStep struct {
	Channel string `yaml:"channel"`
	Kind    string `yaml:"kind"`
	Data    string `yaml:"data,omitempty"`
	Value   string `yaml:"value,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// ResolveStep executes or drops through the focus.
type ResolveStep struct {
	// UpTo selects this index first. When nil the current selection is
	// used, or the next pending event when nothing is selected.
	UpTo *int `yaml:"upto,omitempty"`

	// Error is the expected error code; empty expects success.
	Error string `yaml:"error,omitempty"`
}

// FaultStep injects a delivery fault into the pipeline.
type FaultStep struct {
	// Call fails the n-th upcoming delivery (1 is the next one).
	Call int `yaml:"call,omitempty"`

	// Channel fails every delivery on a channel until heal.
	Channel string `yaml:"channel,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of pending, delivered, row, released.
	Type string `yaml:"type"`

	// Count is the expected pending count (pending).
	Count int `yaml:"count,omitempty"`

	// Payloads are the expected delivered payloads (delivered).
	Payloads []string `yaml:"payloads,omitempty"`

	// Index, Value, Direction and EventType describe a row (row).
	// Empty fields are not checked.
	Index     int    `yaml:"index,omitempty"`
	Value     string `yaml:"value,omitempty"`
	Direction string `yaml:"direction,omitempty"`
	EventType string `yaml:"event_type,omitempty"`
}

// Capture kinds.
const (
	KindActive    = "active"
	KindInactive  = "inactive"
	KindRead      = "read"
	KindWrite     = "write"
	KindShutdown  = "shutdown"
	KindUser      = "user"
	KindException = "exception"
)

// Assertion type constants.
const (
	AssertPending   = "pending"
	AssertDelivered = "delivered"
	AssertRow       = "row"
	AssertReleased  = "released"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	for _, ok := range []bool{
		st.Capture != nil, st.Select != nil, st.Edit != nil,
		st.Execute != nil, st.Drop != nil, st.Fail != nil, st.Heal,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	if c := st.Capture; c != nil {
		if c.Channel == "" {
			return fmt.Errorf("steps[%d]: capture channel is required", index)
		}
		switch c.Kind {
		case KindActive, KindInactive, KindRead, KindWrite, KindShutdown, KindUser, KindException:
		default:
			return fmt.Errorf("steps[%d]: unknown capture kind %q", index, c.Kind)
		}
	}
	if f := st.Fail; f != nil && f.Call <= 0 && f.Channel == "" {
		return fmt.Errorf("steps[%d]: fail needs call or channel", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertPending, AssertReleased:
	case AssertDelivered:
		if a.Payloads == nil {
			return fmt.Errorf("assertions[%d]: payloads is required for delivered (use [] for none)", index)
		}
	case AssertRow:
		if a.Index < 0 {
			return fmt.Errorf("assertions[%d]: index must be non-negative for row", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
