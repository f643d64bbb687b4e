package view

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/store"
)

// Columns are the column headings, in display order.
var Columns = []string{"Received", "Sent", "Direction", "Event Type", "Value"}

// Row is the display projection of one event.
type Row struct {
	Index     int        `json:"index"`
	Received  time.Time  `json:"received"`
	Sent      *time.Time `json:"sent,omitempty"`
	Direction string     `json:"direction"`
	EventType string     `json:"event_type"`
	Value     string     `json:"value"`
}

// Project builds the row for the event at index i of s.
func Project(s *store.Store, i int) (Row, error) {
	e, err := s.Get(i)
	if err != nil {
		return Row{}, err
	}
	dir, err := s.Direction(e)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		Index:     i,
		Received:  e.EventTime(),
		Direction: dir.String(),
		EventType: e.Type().String(),
		Value:     Summary(e),
	}
	if at, ok := e.ExecutionTime(); ok {
		row.Sent = &at
	}
	return row, nil
}

// ProjectAll builds rows for every event of s.
func ProjectAll(s *store.Store) ([]Row, error) {
	rows := make([]Row, 0, s.Size())
	for i := 0; i < s.Size(); i++ {
		row, err := Project(s, i)
		if err != nil {
			return nil, fmt.Errorf("project row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Summary renders the Value column for e:
//   - messages: payload type and byte count, or its string form
//   - user events: "Input Shutdown" or "UserEvent <value>"
//   - exceptions: first line of the cause
//   - lifecycle markers: empty
func Summary(e event.Event) string {
	switch ev := e.(type) {
	case *event.MessageEvent:
		return messageSummary(ev.Describe())
	case *event.UserEvent:
		return userEventSummary(ev.Value())
	case *event.ExceptionEvent:
		return firstLine(ev.Cause())
	case *event.MarkerEvent:
		return ""
	default:
		return ""
	}
}

func messageSummary(info event.PayloadInfo) string {
	if info.TypeName == "" {
		return ""
	}
	name := simpleName(info.TypeName)
	if info.Size >= 0 {
		return fmt.Sprintf("%s (%d bytes)", name, info.Size)
	}
	return fmt.Sprintf("%s (%s)", name, norm.NFC.String(info.Text))
}

func userEventSummary(v any) string {
	switch v := v.(type) {
	case nil:
		return "UserEvent (null)"
	case event.InputShutdown:
		return "Input Shutdown"
	default:
		return "UserEvent " + norm.NFC.String(fmt.Sprint(v))
	}
}

// simpleName strips the package path and pointer from a Go type name.
func simpleName(typeName string) string {
	if typeName == "[]uint8" {
		return "[]byte"
	}
	name := strings.TrimPrefix(typeName, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func firstLine(s string) string {
	s = norm.NFC.String(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
