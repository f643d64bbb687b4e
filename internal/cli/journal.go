package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database   string
	Connection string
	Counts     bool
}

// JournalEntries is the journal command's listing.
type JournalEntries []journal.Entry

// WriteText renders the entries as a table.
func (es JournalEntries) WriteText(w io.Writer) error {
	if len(es) == 0 {
		_, err := fmt.Fprintln(w, "No decisions recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tCONNECTION\tINDEX\tTYPE\tOUTCOME\tSIZE\tDECIDED\tERROR")
	for _, e := range es {
		size := "-"
		if e.Size >= 0 {
			size = fmt.Sprint(e.Size)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.ConnectionID, e.Index, e.EventType, e.Outcome, size,
			e.DecidedAt.UTC().Format(time.RFC3339Nano), e.Error)
	}
	return tw.Flush()
}

// OutcomeCounts is the journal command's --counts output.
type OutcomeCounts map[engine.Outcome]int

// WriteText renders one "outcome: n" line per outcome, sorted.
func (c OutcomeCounts) WriteText(w io.Writer) error {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %d\n", k, c[engine.Outcome(k)]); err != nil {
			return err
		}
	}
	return nil
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded execute/drop decisions",
		Long: `Show the decisions recorded in a decision journal, in capture order.

Example:
  mallet journal --db ./decisions.db
  mallet journal --db ./decisions.db --connection 0190a5f2-...
  mallet journal --db ./decisions.db --counts --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.Connection, "connection", "", "only show this connection")
	cmd.Flags().BoolVar(&opts.Counts, "counts", false, "show counts per outcome instead of entries")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	// Don't create an empty journal by reading a mistyped path
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", opts.Database))
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	out := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Counts {
		counts, err := j.Counts(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count decisions", err)
		}
		return out.Success(OutcomeCounts(counts))
	}

	entries, err := j.List(ctx, opts.Connection)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list decisions", err)
	}
	return out.Success(JournalEntries(entries))
}
