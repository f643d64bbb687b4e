package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// TimeLayout formats the Received and Sent columns.
const TimeLayout = "15:04:05.000"

// WriteTable renders rows as an aligned text table with a header line.
// Pending rows leave the Sent column empty.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, strings.Join(append([]string{"#"}, Columns...), "\t")); err != nil {
		return err
	}
	for _, r := range rows {
		sent := ""
		if r.Sent != nil {
			sent = r.Sent.Format(TimeLayout)
		}
		_, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Index,
			r.Received.Format(TimeLayout),
			sent,
			r.Direction,
			r.EventType,
			r.Value,
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}
