package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/medsync/internal/schema"
)

// CatalogType summarizes one entity type.
type CatalogType struct {
	Name    string `json:"name"`
	Extends string `json:"extends,omitempty"`
	Fields  int    `json:"fields"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog [type]",
		Short: "List entity types or describe one type",
		Long: `Print the entity catalog this node ingests against: the built-in
clinical catalog, or the CUE definitions in schema_dir.

Without an argument, lists every type. With a type name, lists its
fields in the order they are applied, inherited fields first.

Examples:
  medsync catalog
  medsync catalog Patient
  medsync catalog --config node.yaml --format json Encounter`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName := ""
			if len(args) == 1 {
				typeName = args[0]
			}
			return runCatalog(rootOpts, typeName, cmd)
		},
	}
	return cmd
}

func runCatalog(opts *RootOptions, typeName string, cmd *cobra.Command) error {
	catalog, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	w := cmd.OutOrStdout()

	if typeName == "" {
		types := make([]CatalogType, 0, len(catalog.Types()))
		for _, name := range catalog.Types() {
			td, _ := catalog.Type(name)
			types = append(types, CatalogType{Name: td.Name, Extends: td.Extends, Fields: len(td.Fields)})
		}
		if opts.Format == "json" {
			return formatter.Success(types)
		}
		for _, t := range types {
			line := fmt.Sprintf("%-24s %2d field(s)", t.Name, t.Fields)
			if t.Extends != "" {
				line += "  extends " + t.Extends
			}
			fmt.Fprintln(w, line)
		}
		return nil
	}

	td, err := catalog.Type(typeName)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownType) {
			return formatter.Fail(CodeUnknownType, fmt.Sprintf("unknown type %q", typeName))
		}
		return err
	}

	if opts.Format == "json" {
		return formatter.Success(td)
	}

	header := td.Name
	if td.Extends != "" {
		header += " extends " + td.Extends
	}
	fmt.Fprintln(w, header)
	for _, fd := range td.Fields {
		kind := string(fd.Kind)
		if fd.Kind == schema.KindReference || fd.Kind == schema.KindSet {
			kind += " -> " + fd.Ref
		}
		line := fmt.Sprintf("  %-20s %-22s", fd.Name, kind)
		if fd.Required {
			line += " required"
		}
		if fd.Unique {
			line += " unique"
		}
		if fd.Owner != td.Name {
			line += " (from " + fd.Owner + ")"
		}
		fmt.Fprintln(w, trimRight(line))
	}
	return nil
}

func trimRight(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}
