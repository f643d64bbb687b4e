package engine

import (
	"context"
	"time"
)

// Outcome is how an event was resolved.
type Outcome string

const (
	// OutcomeExecuted means the payload was delivered to the pipeline.
	OutcomeExecuted Outcome = "executed"
	// OutcomeDropped means the payload was discarded.
	OutcomeDropped Outcome = "dropped"
	// OutcomeFailed means resolution failed and the event is still pending.
	OutcomeFailed Outcome = "failed"
)

// Decision is the audit record of one resolution attempt. It never carries
// payload bytes.
type Decision struct {
	ConnectionID string    `json:"connection_id"`
	Index        int       `json:"index"`
	Seq          int64     `json:"seq"`
	ChannelID    string    `json:"channel_id"`
	EventType    string    `json:"event_type"`
	Outcome      Outcome   `json:"outcome"`
	EventTime    time.Time `json:"event_time"`
	DecidedAt    time.Time `json:"decided_at"`
	Size         int       `json:"size"`
	Error        string    `json:"error,omitempty"`
}

// Journal records operator decisions. Implemented by journal.Journal.
type Journal interface {
	Record(ctx context.Context, d Decision) error
}
