package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	States  []string
	Inverse bool
	Since   string
	Until   string
	Limit   int
	Imports bool
}

// QueueEntry is one listed record.
type QueueEntry struct {
	GUID       string         `json:"guid"`
	State      ir.RecordState `json:"state"`
	RetryCount int            `json:"retry_count"`
	Timestamp  time.Time      `json:"timestamp"`
	Types      []string       `json:"contained_types,omitempty"`
	Items      int            `json:"items"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List outbound sync records (or inbound verdicts)",
		Long: `List sync records in the outbound queue, oldest first.

Filters combine: --state selects records in any of the given states
(--inverse selects the others), --since keeps records created strictly
after a time, --until keeps records created at or before a time. Times
are RFC 3339.

With --imports the same filters apply to the import records (verdicts)
this node has produced, in the order the records first arrived.

Examples:
  medsync queue --db ./node.db
  medsync queue --db ./node.db --state NEW --state PENDING
  medsync queue --db ./node.db --state COMMITTED --inverse
  medsync queue --db ./node.db --since 2024-01-01T00:00:00Z --until 2024-02-01T00:00:00Z
  medsync queue --db ./node.db --imports --state FAILED`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.States, "state", nil, "record state to match (repeatable)")
	cmd.Flags().BoolVar(&opts.Inverse, "inverse", false, "match records NOT in --state")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only records created after this time (RFC 3339)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "only records created at or before this time (RFC 3339)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records to list (0 = all)")
	cmd.Flags().BoolVar(&opts.Imports, "imports", false, "list import records instead of the outbound queue")

	return cmd
}

// buildQuery validates the filter flags.
func (o *QueueOptions) buildQuery() (store.RecordQuery, error) {
	q := store.RecordQuery{Inverse: o.Inverse, Limit: o.Limit}

	for _, s := range o.States {
		st, err := ir.ParseRecordState(strings.ToUpper(strings.TrimSpace(s)))
		if err != nil {
			return q, err
		}
		q.States = append(q.States, st)
	}
	if o.Inverse && len(q.States) == 0 {
		return q, fmt.Errorf("--inverse requires --state")
	}

	var err error
	if q.Since, err = parseTimeFlag("since", o.Since); err != nil {
		return q, err
	}
	if q.Until, err = parseTimeFlag("until", o.Until); err != nil {
		return q, err
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		return q, fmt.Errorf("--since must be before --until")
	}
	if o.Limit < 0 {
		return q, fmt.Errorf("--limit must not be negative")
	}
	return q, nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t.UTC(), nil
}

func runQueue(opts *QueueOptions, cmd *cobra.Command) error {
	q, err := opts.buildQuery()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	var entries []QueueEntry
	if opts.Imports {
		recs, err := st.ListImportRecords(ctx, q)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list import records", err)
		}
		for _, rec := range recs {
			entries = append(entries, QueueEntry{
				GUID:       rec.GUID,
				State:      rec.State,
				RetryCount: rec.RetryCount,
				Timestamp:  rec.Timestamp,
				Items:      len(rec.Items),
			})
		}
	} else {
		recs, err := st.ListSyncRecords(ctx, q)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sync records", err)
		}
		for _, rec := range recs {
			entries = append(entries, QueueEntry{
				GUID:       rec.GUID,
				State:      rec.State,
				RetryCount: rec.RetryCount,
				Timestamp:  rec.Timestamp,
				Types:      rec.ContainedTypes,
				Items:      len(rec.Items),
			})
		}
	}
	if entries == nil {
		entries = []QueueEntry{}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(entries)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-20s retries=%d  items=%d  %s",
			e.GUID, e.State, e.RetryCount, e.Items, e.Timestamp.UTC().Format(time.RFC3339))
		if len(e.Types) > 0 {
			fmt.Fprintf(w, "  %s", strings.Join(e.Types, ","))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\n%d record(s)\n", len(entries))
	return nil
}
