package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lattice/internal/node"
)

// mutationDoc is the YAML shape accepted by `lattice mutate`.
type mutationDoc struct {
	Schema        string                    `yaml:"schema"`
	Op            string                    `yaml:"op,omitempty"`
	PubKey        string                    `yaml:"pub_key"`
	TrustDistance int                       `yaml:"trust_distance,omitempty"`
	Fields        map[string]map[string]any `yaml:"fields"`
}

// NewMutateCommand writes field values from a YAML mutation document.
func NewMutateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mutate <mutation.yaml>",
		Short: "Apply a mutation document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc mutationDoc
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			op := node.MutationOpUpdate
			if doc.Op != "" {
				op = node.MutationOp(doc.Op)
			}

			n, cleanup, err := openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := n.ExecuteMutation(cmd.Context(), node.Mutation{
				Schema:        doc.Schema,
				Fields:        doc.Fields,
				PubKey:        doc.PubKey,
				TrustDistance: doc.TrustDistance,
				Op:            op,
			})
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), opts, result, func(w io.Writer) error {
				names := make([]string, 0, len(result.Fields))
				for name := range result.Fields {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					write := result.Fields[name]
					if write.Err != nil {
						fmt.Fprintf(w, "%-20s %s\n", name, errText(write.Err))
						continue
					}
					fmt.Fprintf(w, "%-20s atom=%s\n", name, write.AtomUUID)
				}
				return nil
			})
		},
	}
}
