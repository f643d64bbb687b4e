package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/mallet/internal/event"
)

// AssertionError describes a failed assertion with context.
type AssertionError struct {
	Type     string
	Expected any
	Got      any
	Context  string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s assertion failed: expected %v, got %v (%s)", e.Type, e.Expected, e.Got, e.Context)
}

func (r *runner) check(a Assertion, result *Result) error {
	switch a.Type {
	case AssertPending:
		return assertPending(r.conn.Store.PendingCount(), a.Count)
	case AssertDelivered:
		return assertDelivered(result.Deliveries, a.Payloads)
	case AssertRow:
		return assertRow(result, a)
	case AssertReleased:
		return r.assertReleased()
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertPending(got, want int) error {
	if got != want {
		return &AssertionError{
			Type:     AssertPending,
			Expected: want,
			Got:      got,
			Context:  "pending events",
		}
	}
	return nil
}

// assertDelivered verifies the exact delivered payload sequence.
func assertDelivered(deliveries []DeliveryRecord, want []string) error {
	got := make([]string, len(deliveries))
	for i, d := range deliveries {
		got[i] = d.Payload
	}
	if len(got) != len(want) {
		return &AssertionError{
			Type:     AssertDelivered,
			Expected: fmt.Sprintf("%d payloads %q", len(want), want),
			Got:      fmt.Sprintf("%d payloads %q", len(got), got),
			Context:  "delivery count",
		}
	}
	for i := range want {
		if got[i] != want[i] {
			return &AssertionError{
				Type:     AssertDelivered,
				Expected: want[i],
				Got:      got[i],
				Context:  fmt.Sprintf("delivery %d", i),
			}
		}
	}
	return nil
}

// assertRow checks the non-empty fields of a against the row at a.Index.
func assertRow(result *Result, a Assertion) error {
	if a.Index >= len(result.Rows) {
		return fmt.Errorf("row %d out of range (%d rows)", a.Index, len(result.Rows))
	}
	row := result.Rows[a.Index]

	var mismatches []string
	if a.Value != "" && row.Value != a.Value {
		mismatches = append(mismatches, fmt.Sprintf("value %q != %q", row.Value, a.Value))
	}
	if a.Direction != "" && row.Direction != a.Direction {
		mismatches = append(mismatches, fmt.Sprintf("direction %q != %q", row.Direction, a.Direction))
	}
	if a.EventType != "" && row.EventType != a.EventType {
		mismatches = append(mismatches, fmt.Sprintf("event type %q != %q", row.EventType, a.EventType))
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertRow,
			Expected: "matching row",
			Got:      strings.Join(mismatches, "; "),
			Context:  fmt.Sprintf("row %d", a.Index),
		}
	}
	return nil
}

// assertReleased verifies that no buffer outlives its event: buffers of
// pending events hold exactly the event's reference, every other buffer is
// freed.
func (r *runner) assertReleased() error {
	held := make(map[any]bool)
	for _, e := range r.conn.Store.Events() {
		m, ok := e.(*event.MessageEvent)
		if !ok || m.IsExecuted() {
			continue
		}
		if p := m.Message(); p != nil {
			held[p] = true
			_ = event.Release(p)
		}
	}

	for i, buf := range r.buffers {
		want := int32(0)
		if held[buf] {
			want = 1
		}
		if got := buf.RefCnt(); got != want {
			return &AssertionError{
				Type:     AssertReleased,
				Expected: want,
				Got:      got,
				Context:  fmt.Sprintf("buffer %d (%d bytes)", i, buf.Len()),
			}
		}
	}
	return nil
}
