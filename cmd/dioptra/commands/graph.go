package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/usnistgov/dioptra-sub004/pkg/config"
	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

func newGraphCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <experiment.yml>",
		Short: "Inspect an experiment's task graph",
		Long: `Compute and display an experiment's dependency graph.

Output formats:
  order   the sequential execution order, one step per line
  levels  steps grouped by topological level
  dot     Graphviz DOT suitable for rendering`,
		Example: `  # Print the execution order
  dioptra graph experiment.yml

  # Render the graph with Graphviz
  dioptra graph --format dot experiment.yml | dot -Tsvg -o graph.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader()
			if err != nil {
				return err
			}
			exp, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			builder := engine.NewGraphBuilder()
			order, err := builder.Order(exp.Description.Graph)
			if err != nil {
				return err
			}

			switch format {
			case "order":
				for _, step := range order {
					fmt.Println(step)
				}
			case "levels":
				for i, level := range builder.Levels() {
					fmt.Printf("level %d: %s\n", i, strings.Join(level, ", "))
				}
			case "dot":
				fmt.Print(builder.ToDOT())
			default:
				return fmt.Errorf("invalid format %q (expected order, levels, or dot)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "order", "output format (order, levels, dot)")

	return cmd
}
