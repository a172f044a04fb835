package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/engine"
	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// OutcomeResult is the result of applying one outcome report.
type OutcomeResult struct {
	GUID     string         `json:"guid"`
	Server   string         `json:"server,omitempty"`
	Reported ir.RecordState `json:"reported"`
	State    ir.RecordState `json:"state,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// OutcomeSummary is the result of an outcome run.
type OutcomeSummary struct {
	Reports []OutcomeResult `json:"reports"`
	Applied int             `json:"applied"`
	Failed  int             `json:"failed"`
	Total   int             `json:"total"`
}

// OutcomeOptions holds flags for the outcome command.
type OutcomeOptions struct {
	*RootOptions
	From string
}

// NewOutcomeCommand creates the outcome command.
func NewOutcomeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OutcomeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "outcome <imports.json|->",
		Short: "Record the verdicts a peer returned for staged records",
		Long: `Apply outcome reports (import records returned by a receiving node) to
the outbound queue.

ALREADY_COMMITTED is stored as COMMITTED and NOT_SUPPOSED_TO_SYNC as
REJECTED. A report for a record this node never staged is an error.

Reports from the parent server (config "parent"), or with no --from, set
the record's own state. Reports from any other server are kept per server
and shown by "medsync show".

Exit codes:
  0 - Every report applied
  1 - One or more reports could not be applied
  2 - Command error (invalid input, database not found, etc.)

Examples:
  medsync outcome --db ./node.db verdicts.json
  medsync outcome --db ./node.db --from kisumu verdicts.json
  medsync ingest --db ./peer.db --format json records.json | jq .data.records | medsync outcome --db ./node.db -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "server that returned the reports (default the parent)")

	return cmd
}

func runOutcome(opts *OutcomeOptions, input string, cmd *cobra.Command) error {
	data, err := readInput(cmd, input)
	if err != nil {
		return err
	}
	reports, err := decodeList[ir.ImportRecord](data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid outcome reports", err)
	}

	catalog, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer closeStore(st)

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	ing := engine.New(st, catalog, engine.WithParent(cfg.Parent), engine.WithLogger(slog.Default()))

	ctx, stop := commandContext(cmd)
	defer stop()

	summary := OutcomeSummary{Reports: make([]OutcomeResult, 0, len(reports)), Total: len(reports)}
	for _, report := range reports {
		res := OutcomeResult{GUID: report.GUID, Server: opts.From, Reported: report.State}
		if err := ing.ProcessOutcomeFrom(ctx, opts.From, report); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				res.Error = "no staged record with this guid"
			} else {
				res.Error = err.Error()
			}
			summary.Failed++
		} else {
			res.State = engine.NormalizeOutcome(report.State)
			summary.Applied++
		}
		summary.Reports = append(summary.Reports, res)
	}

	w := cmd.OutOrStdout()
	failure := ""
	if summary.Failed > 0 {
		failure = fmt.Sprintf("%d report(s) not applied", summary.Failed)
	}
	if opts.Format == "json" {
		if err := opts.formatter(cmd).Summary(summary, CodeOutcomeFailed, failure); err != nil {
			return err
		}
	} else {
		for _, res := range summary.Reports {
			if res.Error != "" {
				fmt.Fprintf(w, "✗ %s %s: %s\n", res.GUID, res.Reported, res.Error)
				continue
			}
			if res.Server != "" {
				fmt.Fprintf(w, "✓ %s %s -> %s (server %s)\n", res.GUID, res.Reported, res.State, res.Server)
				continue
			}
			fmt.Fprintf(w, "✓ %s %s -> %s\n", res.GUID, res.Reported, res.State)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Outcome Summary: %d applied, %d failed, %d total\n", summary.Applied, summary.Failed, summary.Total)
	}

	if failure != "" {
		return NewExitError(ExitFailure, failure)
	}
	return nil
}
