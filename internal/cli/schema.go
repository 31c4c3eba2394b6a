package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lattice/internal/model"
)

// NewSchemaCommand groups the schema lifecycle subcommands.
func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schema definitions and lifecycle",
	}
	cmd.AddCommand(newSchemaLoadCommand(opts))
	cmd.AddCommand(newSchemaListCommand(opts))
	cmd.AddCommand(newSchemaStateCommand(opts, "approve", "Approve an available schema"))
	cmd.AddCommand(newSchemaStateCommand(opts, "block", "Block a schema"))
	cmd.AddCommand(newSchemaStateCommand(opts, "unload", "Remove a schema from the active set"))
	cmd.AddCommand(newSchemaStateCommand(opts, "reload", "Return a stored schema to the active set"))
	cmd.AddCommand(newSchemaShowCommand(opts))
	return cmd
}

func newSchemaLoadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <schema.yaml>",
		Short: "Validate, store, and activate a schema definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var s model.Schema
			if err := yaml.Unmarshal(data, &s); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := n.LoadSchema(cmd.Context(), s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s loaded (%d fields)\n", s.Name, len(s.Fields))
			return nil
		},
	}
}

func newSchemaListCommand(opts *RootOptions) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schemas by lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := n.Schemas().ListByState(cmd.Context(), model.SchemaState(state))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts, names, func(w io.Writer) error {
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", string(model.SchemaStateAvailable), "lifecycle state (available|approved|blocked)")
	return cmd
}

func newSchemaStateCommand(opts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			name := args[0]
			switch verb {
			case "approve":
				err = n.Schemas().Approve(ctx, name)
			case "block":
				err = n.Schemas().Block(ctx, name)
			case "unload":
				err = n.Schemas().Unload(ctx, name)
			case "reload":
				err = n.Schemas().Reload(ctx, name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s: %s ok\n", name, verb)
			return nil
		},
	}
}

func newSchemaShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored schema definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := n.Schemas().GetStored(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts, s, func(w io.Writer) error {
				fmt.Fprintf(w, "%s (%d fields)\n", s.Name, len(s.Fields))
				for name, field := range s.Fields {
					fmt.Fprintf(w, "  %-20s %-10s ref=%s\n", name, field.FieldType, field.RefAtomUUID)
				}
				return nil
			})
		},
	}
}
