package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/node"
)

// NewQueryCommand reads field values.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	var (
		pubKey        string
		trustDistance int
		rangeKey      string
	)
	cmd := &cobra.Command{
		Use:   "query <schema> <field>...",
		Short: "Read current field values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			q := node.Query{
				Schema:        args[0],
				Fields:        args[1:],
				PubKey:        pubKey,
				TrustDistance: trustDistance,
			}
			if rangeKey != "" {
				q.Filter = &node.QueryFilter{RangeKey: rangeKey}
			}

			result, err := n.ExecuteQuery(cmd.Context(), q)
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), opts, resultForOutput(result), func(w io.Writer) error {
				names := make([]string, 0, len(result.Fields))
				for name := range result.Fields {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fr := result.Fields[name]
					if fr.Err != nil {
						fmt.Fprintf(w, "%-20s %s\n", name, errText(fr.Err))
						continue
					}
					fmt.Fprintf(w, "%-20s %v\n", name, fr.Value)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pubKey, "pub-key", "", "caller public key")
	cmd.Flags().IntVar(&trustDistance, "trust-distance", 0, "caller trust distance")
	cmd.Flags().StringVar(&rangeKey, "range-key", "", "filter range fields to one partition")
	return cmd
}

// resultForOutput flattens FieldResult errors into strings for JSON output.
func resultForOutput(result node.QueryResult) map[string]any {
	out := make(map[string]any, len(result.Fields))
	for name, fr := range result.Fields {
		if fr.Err != nil {
			out[name] = map[string]any{"error": fr.Err.Error()}
			continue
		}
		out[name] = map[string]any{"value": fr.Value}
	}
	return out
}
