package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/pipeline"
	"github.com/roach88/mallet/internal/store"
	"github.com/roach88/mallet/internal/testutil"
)

func decision(conn string, idx int, seq int64, outcome engine.Outcome) engine.Decision {
	at := testutil.Epoch.Add(time.Duration(seq) * time.Millisecond)
	return engine.Decision{
		ConnectionID: conn,
		Index:        idx,
		Seq:          seq,
		ChannelID:    "ch-" + conn,
		EventType:    "ChannelRead",
		Outcome:      outcome,
		EventTime:    at,
		DecidedAt:    at.Add(time.Second),
		Size:         12,
	}
}

func TestRecordAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	// recorded out of seq order
	require.NoError(t, j.Record(ctx, decision("a", 1, 3, engine.OutcomeDropped)))
	require.NoError(t, j.Record(ctx, decision("b", 0, 2, engine.OutcomeExecuted)))
	require.NoError(t, j.Record(ctx, decision("a", 0, 1, engine.OutcomeExecuted)))

	all, err := j.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq}, "ordered by seq")

	got := all[0].Decision
	assert.Equal(t, decision("a", 0, 1, engine.OutcomeExecuted), got, "round trip preserves every field")

	onlyA, err := j.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, engine.OutcomeDropped, onlyA[1].Outcome)
}

func TestList_Empty(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestRecord_RejectsUnknownOutcome(t *testing.T) {
	j := openTestJournal(t)

	err := j.Record(context.Background(), decision("a", 0, 1, engine.Outcome("replayed")))
	assert.Error(t, err)
}

func TestCounts(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i, o := range []engine.Outcome{engine.OutcomeExecuted, engine.OutcomeExecuted, engine.OutcomeFailed} {
		require.NoError(t, j.Record(ctx, decision("a", i, int64(i+1), o)))
	}

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[engine.Outcome]int{
		engine.OutcomeExecuted: 2,
		engine.OutcomeFailed:   1,
	}, counts)
}

func TestJournal_RecordsGateDecisions(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	clock := testutil.NewFakeClock()

	s := store.New()
	rec := pipeline.NewRecorder()
	rec.FailCall(2, errors.New("write: broken pipe"))
	gate := engine.NewGate("conn-9", s, rec, engine.WithClock(clock), engine.WithJournal(j))

	for i := 0; i < 3; i++ {
		_, err := s.Append(event.NewMessage("client", event.Inbound, event.NewBuffer([]byte("abc")), clock.Advance(time.Millisecond)))
		require.NoError(t, err)
	}

	_, err := gate.Execute(ctx, 2, nil)
	require.Error(t, err)
	_, err = gate.Drop(ctx, 2)
	require.NoError(t, err)

	entries, err := j.List(ctx, "conn-9")
	require.NoError(t, err)

	var outcomes []engine.Outcome
	for _, e := range entries {
		outcomes = append(outcomes, e.Outcome)
		assert.Equal(t, 3, e.Size, "payload size, never payload bytes")
	}
	// index 1 fails, then 1 and 2 are dropped; seq order puts both index 1 rows together
	assert.Equal(t, []engine.Outcome{
		engine.OutcomeExecuted,
		engine.OutcomeFailed,
		engine.OutcomeDropped,
		engine.OutcomeDropped,
	}, outcomes)
	assert.Contains(t, entries[1].Error, "broken pipe")
}
