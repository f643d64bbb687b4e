package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/store"
)

// Next is the boundary that resolves exactly one event: the earliest
// pending one.
const Next = -1

// Result reports the progress of a resolution call. It is meaningful even
// when the call returns an error.
type Result struct {
	// Resolved counts events resolved by this call.
	Resolved int `json:"resolved"`

	// Skipped counts events in range that were already resolved.
	Skipped int `json:"skipped"`

	// LastResolved is the highest index resolved by this call, or -1.
	LastResolved int `json:"last_resolved"`

	// NextPending is the smallest index greater than LastResolved that is
	// still pending, or -1. When nothing was resolved it is the first
	// pending index. Selection should advance here.
	NextPending int `json:"next_pending"`
}

// Gate moves events from pending to executed (delivered) or dropped.
//
// The gate is not safe for concurrent resolution; Controller serializes
// calls per connection.
type Gate struct {
	connID   string
	store    *store.Store
	pipeline Pipeline
	clock    event.Clock
	metrics  *Metrics
	journal  Journal
	logger   *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock sets the clock used to stamp execution times.
func WithClock(c event.Clock) GateOption {
	return func(g *Gate) {
		g.clock = c
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithJournal records every resolution attempt in j.
func WithJournal(j Journal) GateOption {
	return func(g *Gate) {
		g.journal = j
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = l
	}
}

// NewGate creates the execution gate for one connection's store.
func NewGate(connID string, s *store.Store, p Pipeline, opts ...GateOption) *Gate {
	g := &Gate{
		connID:   connID,
		store:    s,
		pipeline: p,
		clock:    event.SystemClock{},
		logger:   slog.Default().With("component", "gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("connection", connID)
	return g
}

// Drop discards every pending event at index <= upTo, releasing owned
// payloads without delivering them. upTo == Next drops only the earliest
// pending event.
func (g *Gate) Drop(ctx context.Context, upTo int) (Result, error) {
	return g.resolve(ctx, upTo, OutcomeDropped)
}

// Execute delivers every pending event at index <= upTo to the pipeline.
// upTo == Next executes only the earliest pending event.
//
// If edit is non-nil and its editor is not read-only, the editor's current
// object is committed into edit.Event first and the editor is cleared. A
// commit failure returns an EDITOR_COMMIT_FAILURE error and resolves nothing.
func (g *Gate) Execute(ctx context.Context, upTo int, edit *PendingEdit) (Result, error) {
	committed, err := edit.commit()
	if err != nil {
		g.logger.Warn("pending edit not committed", "error", err)
		return g.emptyResult(), err
	}
	if committed {
		edit.Editor.SetCurrentObject(nil)
	}
	return g.resolve(ctx, upTo, OutcomeExecuted)
}

// bounds returns the index range a resolution call covers.
// ok is false when there is nothing to resolve.
func (g *Gate) bounds(upTo int) (first, last int, ok bool, err error) {
	if upTo == Next {
		idx, found := g.store.FirstPending()
		return idx, idx, found, nil
	}
	size := g.store.Size()
	if upTo < Next || upTo >= size {
		return 0, 0, false, event.ErrInvalidIndex(upTo, size)
	}
	return 0, upTo, true, nil
}

func (g *Gate) resolve(ctx context.Context, upTo int, outcome Outcome) (Result, error) {
	res := g.emptyResult()

	first, last, ok, err := g.bounds(upTo)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, nil
	}

	for i := first; i <= last; i++ {
		// Cancellation is honored between events only.
		if err := ctx.Err(); err != nil {
			g.finish(&res)
			return res, fmt.Errorf("resolve %s: %w", outcome, err)
		}

		e, err := g.store.Get(i)
		if err != nil {
			g.finish(&res)
			return res, err
		}
		if e.IsExecuted() {
			res.Skipped++
			continue
		}

		if err := g.resolveOne(ctx, i, e, outcome); err != nil {
			if event.CodeOf(err) == event.ErrCodeAlreadyExecuted {
				res.Skipped++
				continue
			}
			g.finish(&res)
			return res, err
		}
		res.Resolved++
		res.LastResolved = i
	}

	g.finish(&res)
	return res, nil
}

// resolveOne resolves the event at index i. The event is resolved
// atomically or not at all.
func (g *Gate) resolveOne(ctx context.Context, i int, e event.Event, outcome Outcome) error {
	fn := event.Release
	if outcome == OutcomeExecuted {
		fn = func(payload any) error {
			if err := g.pipeline.Deliver(ctx, e.ChannelID(), payload); err != nil {
				return deliveryError(i, e.ChannelID(), err)
			}
			return nil
		}
	}

	size := payloadSize(e)
	err := e.Resolve(g.clock.Now(), fn)
	if err != nil {
		if event.CodeOf(err) == event.ErrCodeAlreadyExecuted {
			return err
		}
		err = atIndex(err, i)
		g.logger.Warn("resolution failed", "index", i, "outcome", outcome, "error", err)
		g.metrics.recordResolved(ctx, e.Type(), OutcomeFailed)
		g.record(ctx, i, e, OutcomeFailed, size, err)
		return err
	}

	g.logger.Debug("event resolved", "index", i, "type", e.Type(), "outcome", outcome)
	g.store.NotifyUpdated(i, i)
	g.metrics.recordResolved(ctx, e.Type(), outcome)
	g.record(ctx, i, e, outcome, size, nil)
	return nil
}

// record writes a decision to the journal. Journal failures are logged and
// do not affect the resolution, which has already happened.
func (g *Gate) record(ctx context.Context, i int, e event.Event, outcome Outcome, size int, cause error) {
	if g.journal == nil {
		return
	}

	seq, _ := g.store.Seq(i)
	d := Decision{
		ConnectionID: g.connID,
		Index:        i,
		Seq:          seq,
		ChannelID:    e.ChannelID(),
		EventType:    e.Type().String(),
		Outcome:      outcome,
		EventTime:    e.EventTime(),
		DecidedAt:    g.clock.Now(),
		Size:         size,
	}
	if ts, ok := e.ExecutionTime(); ok {
		d.DecidedAt = ts
	}
	if cause != nil {
		d.Error = cause.Error()
	}

	if err := g.journal.Record(ctx, d); err != nil {
		g.logger.Error("journal record failed", "index", i, "error", err)
	}
}

func (g *Gate) emptyResult() Result {
	res := Result{LastResolved: -1, NextPending: -1}
	g.finish(&res)
	return res
}

// finish computes NextPending from LastResolved.
func (g *Gate) finish(res *Result) {
	if idx, ok := g.store.NextPending(res.LastResolved); ok {
		res.NextPending = idx
	} else {
		res.NextPending = -1
	}
}

// payloadSize returns the byte size of a message payload, or -1.
func payloadSize(e event.Event) int {
	if m, ok := e.(*event.MessageEvent); ok {
		return m.Describe().Size
	}
	return -1
}
