package harness

import (
	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/view"
)

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass is true if all assertions and step expectations held.
	Pass bool

	// Steps records every execute and drop step.
	Steps []StepResult

	// Rows is the final display projection of the connection.
	Rows []view.Row

	// Deliveries are the payloads the pipeline accepted, in order.
	Deliveries []DeliveryRecord

	// Errors contains assertion and expectation failures.
	Errors []string
}

// StepResult is the outcome of one execute or drop step.
type StepResult struct {
	// Step is the 1-based step number.
	Step int `json:"step"`

	// Op is "execute" or "drop".
	Op string `json:"op"`

	Result engine.Result `json:"result"`

	// Selected is the focus selection after the step.
	Selected int `json:"selected"`

	// Error is the error code returned, if any.
	Error string `json:"error,omitempty"`
}

// DeliveryRecord is one accepted payload in printable form.
type DeliveryRecord struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}

// NewResult creates a new result with Pass=true.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds an error and sets Pass=false.
func (r *Result) AddError(err string) {
	r.Pass = false
	r.Errors = append(r.Errors, err)
}
