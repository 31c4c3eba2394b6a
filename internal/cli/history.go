package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewHistoryCommand walks a field's version chain.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "history <ref-uuid>",
		Short: "Show a field's version chain, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			history, err := n.Atoms().GetHistory(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts, history, func(w io.Writer) error {
				for _, atom := range history {
					fmt.Fprintf(w, "%s  %s  %s  %v\n",
						atom.CreatedAt.Format("2006-01-02T15:04:05Z"), atom.UUID, atom.Status, atom.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "item or range key for keyed refs")
	return cmd
}
