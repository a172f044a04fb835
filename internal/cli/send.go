package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/engine"
	"github.com/roach88/medsync/internal/ir"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Out   string
	Limit int
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Export queued records for delivery to a peer",
		Long: `Write every record still waiting in the outbound queue (NEW or PENDING,
oldest first) as a JSON array that "medsync ingest" accepts. Once the batch
is written each record is marked sent: its state becomes PENDING and its
retry count grows by one. A failed write leaves the queue untouched.

Records stay queued until an outcome report settles them, so running send
again re-exports them with a higher retry count.

The output is always a JSON array; --format does not apply.

Examples:
  medsync send --db ./node.db --out batch.json
  medsync send --db ./node.db --limit 10 | medsync ingest --db ./peer.db -`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records to export (0 = all)")

	return cmd
}

func runSend(opts *SendOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := commandContext(cmd)
	defer stop()

	outbox := engine.NewOutbox(st, engine.UUIDv7Generator{}, engine.SystemClock{}, slog.Default())
	queued, err := outbox.Next(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	// The batch carries each record as it will look once marked sent; the
	// queue only changes after the batch is fully written.
	sent := make([]ir.SyncRecord, 0, len(queued))
	for _, rec := range queued {
		sent = append(sent, engine.AsSent(rec))
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sent); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, buf.Bytes(), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output file", err)
		}
	} else if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
		return WrapExitError(ExitCommandError, "failed to write records", err)
	}

	for _, rec := range queued {
		if _, err := outbox.MarkSent(ctx, rec.GUID); err != nil {
			return WrapExitError(ExitFailure, "failed to mark record sent", err)
		}
	}

	slog.Info("records exported", "count", len(sent), "out", opts.Out)
	if opts.Out != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %d record(s) to %s\n", len(sent), opts.Out)
	}
	return nil
}
