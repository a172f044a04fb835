package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/engine"
	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/metrics"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Workers     int
	AcceptTypes []string
	NodeGUID    string
	MetricsFile string

	// Clock overrides the verdict clock (for testing).
	// If nil, defaults to engine.SystemClock.
	Clock engine.Clock
}

// IngestSummary is the result of an ingest run.
type IngestSummary struct {
	Records   []ir.ImportRecord `json:"records"`
	Committed int               `json:"committed"`
	Replayed  int               `json:"already_committed"`
	Failed    int               `json:"failed"`
	Refused   int               `json:"not_supposed_to_sync"`
	Total     int               `json:"total"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return newIngestCommand(&IngestOptions{RootOptions: rootOpts})
}

func newIngestCommand(opts *IngestOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <records.json|->",
		Short: "Apply sync records and print their verdicts",
		Long: `Apply sync records received from a peer to the local store.

The input is a JSON array of sync records (or a single record). Records run
concurrently, bounded by --workers; items within a record run in order.
Every record gets a verdict (import record), which is persisted and printed.
A record already committed here is answered ALREADY_COMMITTED without being
applied again.

Exit codes:
  0 - Every record committed (or was already committed / not accepted)
  1 - One or more records FAILED
  2 - Command error (invalid input, database error, etc.)

Examples:
  medsync ingest --db ./node.db records.json
  medsync ingest --db ./node.db --accept-type Patient --accept-type Obs records.json
  cat records.json | medsync ingest --db ./node.db --format json -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent record workers (default from config)")
	cmd.Flags().StringSliceVar(&opts.AcceptTypes, "accept-type", nil, "entity type this node accepts (repeatable; default from config)")
	cmd.Flags().StringVar(&opts.NodeGUID, "node-guid", "", "this node's guid (default from config)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	return cmd
}

func runIngest(opts *IngestOptions, input string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	data, err := readInput(cmd, input)
	if err != nil {
		return err
	}
	records, err := decodeList[ir.SyncRecord](data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sync records", err)
	}
	if len(records) == 0 {
		return NewExitError(ExitCommandError, "no sync records in input")
	}

	catalog, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	st, err := opts.openStore(false)
	if err != nil {
		return err
	}
	defer closeStore(st)

	nodeGUID := firstNonEmpty(opts.NodeGUID, cfg.NodeGUID)
	if nodeGUID == "" {
		nodeGUID = engine.UUIDv7Generator{}.Generate()
		slog.Warn("no node guid configured, using a generated one", "node_guid", nodeGUID)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Workers
	}
	accept := opts.AcceptTypes
	if len(accept) == 0 {
		accept = cfg.AcceptTypes
	}
	for _, t := range accept {
		if !catalog.Has(t) {
			slog.Warn("accepted type is not in the catalog", "type", t)
		}
	}

	engOpts := []engine.Option{
		engine.WithNodeGUID(nodeGUID),
		engine.WithWorkers(workers),
		engine.WithAcceptTypes(accept...),
		engine.WithLogger(slog.Default()),
	}
	if opts.Clock != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Clock))
	}

	metricsFile := firstNonEmpty(opts.MetricsFile, cfg.MetricsFile)
	var reg *prometheus.Registry
	if metricsFile != "" {
		reg = prometheus.NewRegistry()
		engOpts = append(engOpts, engine.WithMetrics(metrics.New(reg)))
	}

	ing := engine.New(st, catalog, engOpts...)

	ctx, stop := commandContext(cmd)
	defer stop()

	slog.Info("ingesting records", "count", len(records), "workers", workers, "node_guid", nodeGUID)
	verdicts, batchErr := ing.ProcessBatch(ctx, records)
	if batchErr != nil {
		slog.Error("ingest faults", "error", batchErr)
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics file", err)
		}
		slog.Debug("metrics written", "path", metricsFile)
	}

	summary := summarize(verdicts)
	if err := outputIngest(opts, cmd, summary); err != nil {
		return err
	}

	if batchErr != nil {
		return WrapExitError(ExitFailure, "ingest failed", batchErr)
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", summary.Failed))
	}
	return nil
}

func summarize(verdicts []ir.ImportRecord) IngestSummary {
	s := IngestSummary{Records: verdicts, Total: len(verdicts)}
	for _, v := range verdicts {
		switch v.State {
		case ir.RecordCommitted:
			s.Committed++
		case ir.RecordAlreadyCommitted:
			s.Replayed++
		case ir.RecordNotSupposedToSync:
			s.Refused++
		default:
			s.Failed++
		}
	}
	return s
}

func outputIngest(opts *IngestOptions, cmd *cobra.Command, summary IngestSummary) error {
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		failure := ""
		if summary.Failed > 0 {
			failure = fmt.Sprintf("%d record(s) failed", summary.Failed)
		}
		return opts.formatter(cmd).Summary(summary, CodeIngestFailed, failure)
	}

	for _, rec := range summary.Records {
		synced := 0
		for _, item := range rec.Items {
			if item.State == ir.ItemSynchronized {
				synced++
			}
		}
		fmt.Fprintf(w, "%s %s (%d/%d items synchronized)\n", rec.GUID, rec.State, synced, len(rec.Items))
		for idx, item := range rec.Items {
			if item.State == ir.ItemSynchronized {
				continue
			}
			fmt.Fprintf(w, "  [%d] %s", idx, item.State)
			if item.ErrorCode != "" {
				fmt.Fprintf(w, " %s", item.ErrorCode)
			}
			if len(item.ErrorArgs) > 0 {
				fmt.Fprintf(w, " %v", item.ErrorArgs)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Ingest Summary: %d committed, %d already committed, %d not accepted, %d failed, %d total\n",
		summary.Committed, summary.Replayed, summary.Refused, summary.Failed, summary.Total)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
