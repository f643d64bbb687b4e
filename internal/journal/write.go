package journal

import (
	"context"
	"fmt"

	"github.com/roach88/mallet/internal/engine"
)

// Record appends a decision. Times are stored as Unix nanoseconds.
func (j *Journal) Record(ctx context.Context, d engine.Decision) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO decisions
		(connection_id, idx, seq, channel_id, event_type, outcome, event_time, decided_at, size, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ConnectionID,
		d.Index,
		d.Seq,
		d.ChannelID,
		d.EventType,
		string(d.Outcome),
		d.EventTime.UnixNano(),
		d.DecidedAt.UnixNano(),
		d.Size,
		d.Error,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}
