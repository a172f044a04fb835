package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/engine"
	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// ShowResult holds what this node knows about one record guid.
type ShowResult struct {
	Import  *ir.ImportRecord  `json:"import,omitempty"`
	Sync    *ir.SyncRecord    `json:"sync,omitempty"`
	Servers []ir.ServerRecord `json:"servers,omitempty"` // verdicts from servers other than the parent
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <guid>",
		Short: "Show the import verdict and outbound state of a record",
		Long: `Show everything this node holds for a record guid: the verdict it gave
when ingesting the record, and the record itself if this node staged it,
with the verdict each non-parent server reported for it.

Exit codes:
  0 - Record found
  1 - No record with this guid
  2 - Command error (database not found, etc.)

Examples:
  medsync show --db ./node.db 01890a5d-ac96-774b-bcce-b302099a8057
  medsync show --db ./node.db --format json rec-1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, guid string, cmd *cobra.Command) error {
	catalog, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	ing := engine.New(st, catalog, engine.WithLogger(slog.Default()))

	var result ShowResult
	imp, found, err := ing.GetImportRecord(ctx, guid)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read import record", err)
	}
	if found {
		result.Import = &imp
	}

	rec, err := st.GetSyncRecord(ctx, guid)
	switch {
	case err == nil:
		result.Sync = &rec
		if result.Servers, err = st.ListServerRecords(ctx, guid); err != nil {
			return WrapExitError(ExitCommandError, "failed to read server records", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitCommandError, "failed to read sync record", err)
	}

	formatter := opts.formatter(cmd)
	if result.Import == nil && result.Sync == nil {
		return formatter.Fail(CodeNotFound, fmt.Sprintf("no record with guid %s", guid))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if result.Import != nil {
		writeImportRecord(w, *result.Import)
	}
	if result.Sync != nil {
		if result.Import != nil {
			fmt.Fprintln(w)
		}
		writeSyncRecord(w, *result.Sync, result.Servers)
	}
	return nil
}

func writeImportRecord(w io.Writer, rec ir.ImportRecord) {
	fmt.Fprintf(w, "Import Record: %s\n", rec.GUID)
	fmt.Fprintf(w, "  State:       %s\n", rec.State)
	fmt.Fprintf(w, "  Retry Count: %d\n", rec.RetryCount)
	fmt.Fprintf(w, "  Updated:     %s\n", rec.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Items:       %d\n", len(rec.Items))
	for idx, item := range rec.Items {
		fmt.Fprintf(w, "    [%d] %s %s", idx, item.Key, item.State)
		if item.ErrorCode != "" {
			fmt.Fprintf(w, " %s", item.ErrorCode)
		}
		if len(item.ErrorArgs) > 0 {
			fmt.Fprintf(w, " %v", item.ErrorArgs)
		}
		fmt.Fprintln(w)
	}
}

func writeSyncRecord(w io.Writer, rec ir.SyncRecord, servers []ir.ServerRecord) {
	fmt.Fprintf(w, "Sync Record: %s\n", rec.GUID)
	fmt.Fprintf(w, "  State:       %s\n", rec.State)
	fmt.Fprintf(w, "  Retry Count: %d\n", rec.RetryCount)
	fmt.Fprintf(w, "  Created:     %s\n", rec.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Types:       %s\n", strings.Join(rec.ContainedTypes, ", "))
	fmt.Fprintf(w, "  Items:       %d\n", len(rec.Items))
	for idx, item := range rec.Items {
		fmt.Fprintf(w, "    [%d] %s %s\n", idx, item.Key, item.Content)
	}
	if len(servers) > 0 {
		fmt.Fprintf(w, "  Servers:     %d\n", len(servers))
		for _, sr := range servers {
			fmt.Fprintf(w, "    %s %s %s\n", sr.Server, sr.State, sr.UpdatedAt.UTC().Format(time.RFC3339))
		}
	}
}
