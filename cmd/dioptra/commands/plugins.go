package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPluginsCommand(version string) *cobra.Command {
	var (
		starlarkDirs []string
		wasmDirs     []string
	)

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugin operations",
		Long: `List every plugin operation the registry would expose to a run:
built-in operations plus any Starlark and WASM collections named on the
command line. Coordinates are printed as collection.module.operation.`,
		Example: `  # List the built-in operations
  dioptra plugins

  # Include a Starlark collection
  dioptra plugins --starlark vision=./plugins/vision`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry(version)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.Background()) }()
			logger := tel.Logger.NewComponentLogger("plugins").Zerolog()

			reg, closeRegistry, err := buildRegistry(ctx, logger, starlarkDirs, wasmDirs)
			if err != nil {
				return err
			}
			defer func() { _ = closeRegistry(context.Background()) }()

			for _, coordinate := range reg.List() {
				fmt.Println(coordinate)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&starlarkDirs, "starlark", nil, "Starlark plugin collection (collection=dir)")
	cmd.Flags().StringArrayVar(&wasmDirs, "wasm", nil, "WASM plugin collection (collection=dir)")

	return cmd
}
