package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/pipeline"
	"github.com/roach88/mallet/internal/testutil"
	"github.com/roach88/mallet/internal/view"
)

// StepInterval is how far the clock advances before each step. Step k
// happens at testutil.Epoch + k*StepInterval.
const StepInterval = time.Millisecond

// ConnectionID is the id of the connection every scenario runs on.
const ConnectionID = "conn-1"

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build a registry over a recording pipeline with a fake clock
//  2. Accept one connection and attach a focus with an in-memory editor
//  3. Run the steps in order, advancing the clock before each
//  4. Deselect, committing any in-progress edit and emptying the editor
//  5. Project the rows and evaluate assertions
//
// Returns an error for scenarios that cannot run (capture rejected, select
// out of range). Failed expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with an explicit logger for the core components.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	r := newRunner(scenario, logger)
	result := NewResult()

	for i := range scenario.Steps {
		if err := r.step(ctx, i, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if err := r.focus.Clear(); err != nil {
		return nil, fmt.Errorf("clear selection: %w", err)
	}

	rows, err := view.ProjectAll(r.conn.Store)
	if err != nil {
		return nil, fmt.Errorf("project rows: %w", err)
	}
	result.Rows = rows
	result.Deliveries = deliveryRecords(r.recorder.Deliveries())

	for i, a := range scenario.Assertions {
		if err := r.check(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

type runner struct {
	scenario *Scenario
	clock    *testutil.FakeClock
	recorder *pipeline.Recorder
	editor   *testutil.FakeEditor
	conn     *engine.Connection
	focus    *engine.Focus

	// buffers are every buffer the scenario created, for the released check
	buffers []*event.Buffer
}

func newRunner(scenario *Scenario, logger *slog.Logger) *runner {
	clock := testutil.NewFakeClock()
	rec := pipeline.NewRecorder()
	reg := engine.NewRegistry(rec,
		engine.WithIDGenerator(engine.NewFixedGenerator(ConnectionID)),
		engine.WithRegistryClock(clock),
		engine.WithRegistryLogger(logger),
	)
	conn := reg.Accept()
	editor := testutil.NewFakeEditor()

	return &runner{
		scenario: scenario,
		clock:    clock,
		recorder: rec,
		editor:   editor,
		conn:     conn,
		focus:    engine.NewFocus(conn, editor),
	}
}

func (r *runner) step(ctx context.Context, i int, result *Result) error {
	at := r.clock.Advance(StepInterval)
	st := r.scenario.Steps[i]

	switch {
	case st.Capture != nil:
		_, err := r.conn.Capture(ctx, r.newEvent(st.Capture, at))
		return err

	case st.Select != nil:
		return r.focus.Select(*st.Select)

	case st.Edit != nil:
		if r.editor.ReadOnly() {
			return fmt.Errorf("edit: editor is read-only (selected %d)", r.focus.Selected())
		}
		buf := r.newBuffer(*st.Edit)
		r.editor.Edit(buf)
		return nil

	case st.Execute != nil:
		return r.resolve(ctx, i, "execute", st.Execute, r.focus.Execute, result)

	case st.Drop != nil:
		return r.resolve(ctx, i, "drop", st.Drop, r.focus.Drop, result)

	case st.Fail != nil:
		if st.Fail.Call > 0 {
			r.recorder.FailCall(r.recorder.Calls()+st.Fail.Call, nil)
		}
		if st.Fail.Channel != "" {
			r.recorder.FailChannel(st.Fail.Channel, nil)
		}
		return nil

	case st.Heal:
		r.recorder.Heal()
		return nil
	}
	return fmt.Errorf("empty step")
}

func (r *runner) resolve(
	ctx context.Context,
	i int,
	op string,
	rs *ResolveStep,
	fn func(context.Context) (engine.Result, error),
	result *Result,
) error {
	if rs.UpTo != nil {
		if err := r.focus.Select(*rs.UpTo); err != nil {
			return err
		}
	}

	res, err := fn(ctx)
	code := string(event.CodeOf(err))
	if err != nil && code == "" {
		code = err.Error()
	}

	result.Steps = append(result.Steps, StepResult{
		Step:     i + 1,
		Op:       op,
		Result:   res,
		Selected: r.focus.Selected(),
		Error:    code,
	})

	if code != rs.Error {
		result.AddError(fmt.Sprintf("step %d (%s): expected error %q, got %q", i+1, op, rs.Error, code))
	}
	return nil
}

func (r *runner) newEvent(c *CaptureStep, at time.Time) event.Event {
	switch c.Kind {
	case KindActive:
		return event.NewMarker(c.Channel, event.ChannelActive, at)
	case KindInactive:
		return event.NewMarker(c.Channel, event.ChannelInactive, at)
	case KindRead:
		return event.NewMessage(c.Channel, event.Inbound, r.newBuffer(c.Data), at)
	case KindWrite:
		return event.NewMessage(c.Channel, event.Outbound, r.newBuffer(c.Data), at)
	case KindShutdown:
		return event.NewUserEvent(c.Channel, event.InputShutdown{}, at)
	case KindUser:
		var v any
		if c.Value != "" {
			v = c.Value
		}
		return event.NewUserEvent(c.Channel, v, at)
	default:
		return event.NewException(c.Channel, errors.New(c.Error), "", at)
	}
}

func (r *runner) newBuffer(s string) *event.Buffer {
	buf := event.CopyBuffer([]byte(s))
	r.buffers = append(r.buffers, buf)
	return buf
}

func deliveryRecords(ds []pipeline.Delivery) []DeliveryRecord {
	out := make([]DeliveryRecord, 0, len(ds))
	for _, d := range ds {
		payload := d.Text
		if d.Data != nil {
			payload = string(d.Data)
		}
		out = append(out, DeliveryRecord{Channel: d.ChannelID, Payload: payload})
	}
	return out
}
