package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// NewTransformCommand groups the transform subcommands.
func NewTransformCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Inspect and run registered transforms",
	}
	cmd.AddCommand(newTransformListCommand(opts))
	cmd.AddCommand(newTransformRunCommand(opts))
	return cmd
}

func newTransformListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered transforms and their output fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			transforms := n.ListTransforms()
			return writeOutput(cmd.OutOrStdout(), opts, transforms, func(w io.Writer) error {
				ids := make([]string, 0, len(transforms))
				for id := range transforms {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(w, "%-40s -> %s\n", id, transforms[id])
				}
				return nil
			})
		},
	}
}

func newTransformRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Execute one transform immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			affected, ok, execErr := n.Transforms().ExecuteTransform(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "transform %s: affected=%d ok=%v\n", args[0], affected, ok)
			if execErr != nil {
				return execErr
			}
			return nil
		},
	}
}
