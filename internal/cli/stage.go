package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/engine"
	"github.com/roach88/medsync/internal/ir"
)

// StageOptions holds flags for the stage command.
type StageOptions struct {
	*RootOptions

	// GUIDs overrides the record guid generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	GUIDs engine.GUIDGenerator

	// Clock overrides the staging clock (for testing).
	Clock engine.Clock
}

// NewStageCommand creates the stage command.
func NewStageCommand(rootOpts *RootOptions) *cobra.Command {
	return newStageCommand(&StageOptions{RootOptions: rootOpts})
}

func newStageCommand(opts *StageOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage <changes.json|->",
		Short: "Queue local changes as one outbound sync record",
		Long: `Encode a list of changes into a new sync record (state NEW) and add it
to the outbound queue.

The input is a JSON array of changes:

  [{"type": "Concept", "guid": "c-1",
    "fields": [{"name": "name", "value": "WEIGHT (KG)"}]}]

A field with "null": true clears the value on the receiving node.
Changes are checked against the catalog before anything is queued.

Examples:
  medsync stage --db ./node.db changes.json
  medsync stage --db ./node.db --format json changes.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, args[0], cmd)
		},
	}
	return cmd
}

func runStage(opts *StageOptions, input string, cmd *cobra.Command) error {
	data, err := readInput(cmd, input)
	if err != nil {
		return err
	}
	changes, err := decodeList[ir.ChangeDescriptor](data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid changes", err)
	}
	if len(changes) == 0 {
		return NewExitError(ExitCommandError, "no changes in input")
	}

	catalog, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	for idx, change := range changes {
		if err := checkChange(catalog.Has, change); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("change %d", idx), err)
		}
	}

	st, err := opts.openStore(false)
	if err != nil {
		return err
	}
	defer closeStore(st)

	guids := opts.GUIDs
	if guids == nil {
		guids = engine.UUIDv7Generator{}
	}
	var clock engine.Clock = engine.SystemClock{}
	if opts.Clock != nil {
		clock = opts.Clock
	}
	outbox := engine.NewOutbox(st, guids, clock, slog.Default())

	ctx, stop := commandContext(cmd)
	defer stop()

	rec, err := outbox.Stage(ctx, changes...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to stage changes", err)
	}

	formatter := opts.formatter(cmd)
	for idx, item := range rec.Items {
		formatter.VerboseLog("item %d key %s", idx, item.Key)
	}
	if opts.Format == "json" {
		return formatter.Success(rec)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Staged %s: %d item(s), types %s\n",
		rec.GUID, len(rec.Items), strings.Join(rec.ContainedTypes, ", "))
	return nil
}

// checkChange rejects changes no receiver with the same catalog could apply.
func checkChange(known func(string) bool, change ir.ChangeDescriptor) error {
	if change.Type == "" {
		return fmt.Errorf("type is required")
	}
	if change.GUID == "" {
		return fmt.Errorf("guid is required")
	}
	if !known(change.Type) {
		return fmt.Errorf("unknown type %q", change.Type)
	}
	cc := change.Collection
	if cc == nil {
		return nil
	}
	if len(change.Fields) > 0 {
		return fmt.Errorf("fields and collection are exclusive")
	}
	if cc.Property == "" {
		return fmt.Errorf("collection property is required")
	}
	for i, e := range cc.Entries {
		if e.GUID == "" {
			return fmt.Errorf("collection entry %d: guid is required", i)
		}
		if !known(e.Type) {
			return fmt.Errorf("collection entry %d: unknown type %q", i, e.Type)
		}
	}
	return nil
}
