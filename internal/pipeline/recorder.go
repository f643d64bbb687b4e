package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/mallet/internal/event"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected delivery fault")

// Delivery is one payload accepted by a Recorder.
type Delivery struct {
	// Call is the 1-based Deliver call number that produced this delivery.
	Call int `json:"call"`

	ChannelID string `json:"channel"`

	// Kind is the payload's Go type.
	Kind string `json:"kind"`

	// Data holds a copy of byte payloads.
	Data []byte `json:"data,omitempty"`

	// Text holds the string form of other payloads.
	Text string `json:"text,omitempty"`
}

// Recorder is a Pipeline that records what it is given.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu         sync.Mutex
	calls      int
	deliveries []Delivery
	failCalls  map[int]error
	failChans  map[string]error
}

// NewRecorder creates an empty recorder that accepts everything.
func NewRecorder() *Recorder {
	return &Recorder{
		failCalls: make(map[int]error),
		failChans: make(map[string]error),
	}
}

// FailCall makes the n-th Deliver call (1-based) fail with err, or
// ErrInjected when err is nil. The fault fires once.
func (r *Recorder) FailCall(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	r.failCalls[n] = err
}

// FailChannel makes every delivery on channelID fail until Heal is called.
func (r *Recorder) FailChannel(channelID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	r.failChans[channelID] = err
}

// Heal removes all injected faults.
func (r *Recorder) Heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.failCalls)
	clear(r.failChans)
}

// Deliver implements engine.Pipeline. On success the payload is recorded and
// the received reference released. On an injected fault nothing is released
// and ownership stays with the caller.
func (r *Recorder) Deliver(ctx context.Context, channelID string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if err, ok := r.failCalls[r.calls]; ok {
		delete(r.failCalls, r.calls)
		return fmt.Errorf("deliver call %d: %w", r.calls, err)
	}
	if err, ok := r.failChans[channelID]; ok {
		return fmt.Errorf("deliver on %s: %w", channelID, err)
	}

	d := Delivery{
		Call:      r.calls,
		ChannelID: channelID,
		Kind:      fmt.Sprintf("%T", payload),
	}
	switch p := payload.(type) {
	case nil:
		d.Kind = ""
	case *event.Buffer:
		d.Data = append([]byte(nil), p.Bytes()...)
	case []byte:
		d.Data = append([]byte(nil), p...)
	default:
		d.Text = fmt.Sprint(p)
	}
	r.deliveries = append(r.deliveries, d)

	if err := event.Release(payload); err != nil {
		return fmt.Errorf("release delivered payload: %w", err)
	}
	return nil
}

// Deliveries returns a copy of the recorded deliveries in order.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Calls returns the number of Deliver calls, failed ones included.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Reset forgets deliveries, calls and faults.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = 0
	r.deliveries = nil
	clear(r.failCalls)
	clear(r.failChans)
}
