package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/mallet/internal/engine"
)

// Entry is a stored decision with its row id.
type Entry struct {
	ID int64 `json:"id"`
	engine.Decision
}

// List returns the decisions of one connection, or of all connections when
// connectionID is empty, in seq order.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (j *Journal) List(ctx context.Context, connectionID string) ([]Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	const cols = `id, connection_id, idx, seq, channel_id, event_type, outcome, event_time, decided_at, size, error`
	if connectionID == "" {
		rows, err = j.db.QueryContext(ctx, `
			SELECT `+cols+`
			FROM decisions
			ORDER BY seq ASC, id ASC
		`)
	} else {
		rows, err = j.db.QueryContext(ctx, `
			SELECT `+cols+`
			FROM decisions
			WHERE connection_id = ?
			ORDER BY seq ASC, id ASC
		`, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return entries, nil
}

// Counts returns the number of decisions per outcome.
// Outcomes never recorded are absent from the map.
func (j *Journal) Counts(ctx context.Context) (map[engine.Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM decisions
		GROUP BY outcome
		ORDER BY outcome ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[engine.Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		outcome   string
		eventTime int64
		decidedAt int64
	)
	err := rows.Scan(
		&e.ID,
		&e.ConnectionID,
		&e.Index,
		&e.Seq,
		&e.ChannelID,
		&e.EventType,
		&outcome,
		&eventTime,
		&decidedAt,
		&e.Size,
		&e.Error,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan decision: %w", err)
	}
	e.Outcome = engine.Outcome(outcome)
	e.EventTime = time.Unix(0, eventTime).UTC()
	e.DecidedAt = time.Unix(0, decidedAt).UTC()
	return e, nil
}
