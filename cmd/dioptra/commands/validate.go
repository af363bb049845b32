package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/usnistgov/dioptra-sub004/pkg/config"
	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

func newValidateCommand(version string) *cobra.Command {
	var (
		policyPaths []string
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "validate <experiment.yml>",
		Short: "Validate an experiment document",
		Long: `Validate an experiment document without executing it.

This command checks:
  - YAML syntax and schema conformance
  - Plugin coordinate shapes and task references
  - Graph acyclicity
  - Admission policy compliance (OPA/Rego)`,
		Example: `  # Validate an experiment
  dioptra validate experiment.yml

  # Re-validate whenever the file changes
  dioptra validate --watch experiment.yml

  # Validate against additional policies
  dioptra validate --policy ./policies experiment.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry(version)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.Background()) }()
			logger := tel.Logger.NewComponentLogger("validate").Zerolog()

			if watch {
				return watchAndValidate(ctx, args[0], policyPaths, logger)
			}
			return validateOnce(ctx, args[0], policyPaths, logger)
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate whenever the document changes")

	return cmd
}

// validateOnce loads the document, checks the graph, and evaluates
// admission policies.
func validateOnce(ctx context.Context, path string, policyPaths []string, logger zerolog.Logger) error {
	loader, err := config.NewLoader()
	if err != nil {
		return err
	}
	exp, err := loader.Load(path)
	if err != nil {
		return err
	}

	if _, err := engine.NewGraphBuilder().Order(exp.Description.Graph); err != nil {
		return err
	}

	if err := enforceAdmission(ctx, exp.Description, policyPaths, logger); err != nil {
		return err
	}

	fmt.Printf("%s: OK (%d steps, %d tasks)\n", path, len(exp.Description.Graph), len(exp.Description.Tasks))
	return nil
}

// watchAndValidate validates once, then re-validates on every write to the
// document until the context is cancelled.
func watchAndValidate(ctx context.Context, path string, policyPaths []string, logger zerolog.Logger) error {
	if err := validateOnce(ctx, path, policyPaths, logger); err != nil {
		fmt.Printf("%s: %v\n", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors often replace the file, which drops a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	logger.Info().Str("path", path).Msg("Watching for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if err := validateOnce(ctx, path, policyPaths, logger); err != nil {
				fmt.Printf("%s: %v\n", path, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
