package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/askiada/go-query-pipeline/pkg/query"
)

func newDrawCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "draw <pipeline.yaml>",
		Short: "Print the pipeline graph in the DOT language",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := query.LoadDefinitionFile(args[0])
			if err != nil {
				return err
			}

			pipe, err := offlineRegistry(a.cfg.Embedding.Dim).Build(def)
			if err != nil {
				return err
			}

			if output != "" {
				err = writeDOT(pipe, nil, output)
				if err != nil {
					return err
				}

				a.status(cmd, color.FgGreen, "Graph: %s", output)

				return nil
			}

			return pipe.Draw(cmd.OutOrStdout(), nil)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}
