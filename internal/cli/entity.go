package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/schema"
	"github.com/roach88/medsync/internal/store"
)

// EntityOptions holds flags for the entity command.
type EntityOptions struct {
	*RootOptions
	Key string // field=value natural key lookup
}

// NewEntityCommand creates the entity command.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entity <type> [guid]",
		Short: "Show stored clinical objects",
		Long: `Show objects in the local store.

With a type only, lists every object of that type. With a guid, shows one
object. With --key field=value, looks the object up by a unique field; the
field is resolved to the type that declares it, so a Patient can be found
by a unique field declared on Person.

Examples:
  medsync entity --db ./node.db Concept
  medsync entity --db ./node.db Patient 6f1c2a3e-0001
  medsync entity --db ./node.db Concept --key "name=WEIGHT (KG)"`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			guid := ""
			if len(args) == 2 {
				guid = args[1]
			}
			return runEntity(opts, args[0], guid, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "look up by unique field (field=value)")

	return cmd
}

func runEntity(opts *EntityOptions, typeName, guid string, cmd *cobra.Command) error {
	if guid != "" && opts.Key != "" {
		return NewExitError(ExitCommandError, "give either a guid or --key, not both")
	}

	catalog, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	td, err := catalog.Type(typeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid type", err)
	}

	st, err := opts.openStore(true)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	var ents []ir.Entity
	switch {
	case opts.Key != "":
		field, value, ok := strings.Cut(opts.Key, "=")
		if !ok || field == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --key %q: want field=value", opts.Key))
		}
		fd, ok := td.Field(field)
		if !ok || !fd.Unique {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s.%s is not a unique field", typeName, field))
		}
		ent, err := st.FindByNaturalKey(ctx, fd.Owner, field, value)
		if err != nil {
			return entityLookupError(formatter, err, fmt.Sprintf("no %s with %s=%s", typeName, field, value))
		}
		ents = []ir.Entity{ent}
	case guid != "":
		ent, err := st.GetEntity(ctx, typeName, guid)
		if err != nil {
			return entityLookupError(formatter, err, fmt.Sprintf("no %s with guid %s", typeName, guid))
		}
		ents = []ir.Entity{ent}
	default:
		ents, err = st.ListEntities(ctx, typeName)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list entities", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(ents)
	}

	w := cmd.OutOrStdout()
	if len(ents) == 0 {
		fmt.Fprintf(w, "No %s objects.\n", typeName)
		return nil
	}
	for i, ent := range ents {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeEntity(w, td.Fields, ent)
	}
	return nil
}

func entityLookupError(formatter *OutputFormatter, err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(CodeNotFound, msg)
	}
	return WrapExitError(ExitCommandError, "failed to read entity", err)
}

// writeEntity prints fields in catalog order; fields not set are skipped.
func writeEntity(w io.Writer, fields []schema.FieldDescriptor, ent ir.Entity) {
	fmt.Fprintf(w, "%s %s\n", ent.Type, ent.GUID)
	fmt.Fprintf(w, "  version=%d  updated=%s", ent.Version, ent.UpdatedAt.UTC().Format(time.RFC3339))
	if ent.LastRecordGUID != "" {
		fmt.Fprintf(w, "  origin=%s", ent.LastRecordGUID)
	}
	fmt.Fprintln(w)
	for _, fd := range fields {
		v, ok := ent.Fields[fd.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-20s %s\n", fd.Name, valueText(v))
	}
}

func valueText(v ir.Value) string {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	default:
		data, err := ir.MarshalValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
