package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mallet/internal/view"
)

// Snapshot captures the observable outcome of a scenario run.
type Snapshot struct {
	Scenario   string           `json:"scenario"`
	Steps      []StepResult     `json:"steps"`
	Rows       []view.Row       `json:"rows"`
	Deliveries []DeliveryRecord `json:"deliveries"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{
		Scenario:   name,
		Steps:      result.Steps,
		Rows:       result.Rows,
		Deliveries: result.Deliveries,
	}
	if s.Steps == nil {
		s.Steps = []StepResult{}
	}
	if s.Rows == nil {
		s.Rows = []view.Row{}
	}
	if s.Deliveries == nil {
		s.Deliveries = []DeliveryRecord{}
	}
	return s
}

// MarshalSnapshot renders s as indented JSON with a trailing newline.
// HTML characters are not escaped and the output is NFC-normalized, so the
// same run produces identical bytes on every platform.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return norm.NFC.Bytes(buf.Bytes()), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(NewSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
