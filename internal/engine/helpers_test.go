package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/pipeline"
	"github.com/roach88/mallet/internal/store"
	"github.com/roach88/mallet/internal/testutil"
)

const (
	clientCh = "client"
	serverCh = "server"
)

// fixture is one connection wired to a recording pipeline.
type fixture struct {
	clock    *testutil.FakeClock
	store    *store.Store
	recorder *pipeline.Recorder
	journal  *memJournal
	gate     *Gate
	ctrl     *Controller
}

func newFixture(t *testing.T, opts ...GateOption) *fixture {
	t.Helper()

	f := &fixture{
		clock:    testutil.NewFakeClock(),
		store:    store.New(),
		recorder: pipeline.NewRecorder(),
		journal:  &memJournal{},
	}
	base := []GateOption{
		WithClock(f.clock),
		WithJournal(f.journal),
		WithLogger(discardLogger()),
	}
	f.gate = NewGate("conn-1", f.store, f.recorder, append(base, opts...)...)
	f.ctrl = NewController(f.gate)
	return f
}

// message appends a message holding a fresh buffer and returns both.
func (f *fixture) message(t *testing.T, ch string, data string) (*event.MessageEvent, *event.Buffer) {
	t.Helper()

	buf := event.NewBuffer([]byte(data))
	e := event.NewMessage(ch, event.Inbound, buf, f.clock.Advance(time.Millisecond))
	_, err := f.store.Append(e)
	require.NoError(t, err)
	return e, buf
}

// messages appends n client messages "m0".."m{n-1}".
func (f *fixture) messages(t *testing.T, n int) ([]*event.MessageEvent, []*event.Buffer) {
	t.Helper()

	events := make([]*event.MessageEvent, n)
	bufs := make([]*event.Buffer, n)
	for i := 0; i < n; i++ {
		events[i], bufs[i] = f.message(t, clientCh, "m"+string(rune('0'+i)))
	}
	return events, bufs
}

func (f *fixture) appendEvent(t *testing.T, e event.Event) {
	t.Helper()
	_, err := f.store.Append(e)
	require.NoError(t, err)
}

func (f *fixture) deliveredData() []string {
	var out []string
	for _, d := range f.recorder.Deliveries() {
		if d.Data != nil {
			out = append(out, string(d.Data))
		} else {
			out = append(out, d.Text)
		}
	}
	return out
}

// memJournal is an in-memory Journal.
type memJournal struct {
	mu        sync.Mutex
	decisions []Decision
	err       error
}

func (j *memJournal) Record(_ context.Context, d Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.decisions = append(j.decisions, d)
	return nil
}

func (j *memJournal) all() []Decision {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Decision(nil), j.decisions...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
