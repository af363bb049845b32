package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/usnistgov/dioptra-sub004/pkg/tracking"
)

func newRunsCommand(version string) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect tracked experiment runs",
		Long:  `List, show, and delete runs recorded in the tracking database.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "tracking-db", "dioptra.db", "tracking database path")

	cmd.AddCommand(newRunsListCommand(&dbPath))
	cmd.AddCommand(newRunsShowCommand(&dbPath))
	cmd.AddCommand(newRunsDeleteCommand(&dbPath))

	return cmd
}

// openStore opens and migrates the tracking database.
func openStore(ctx context.Context, dbPath string) (*tracking.SQLiteStore, error) {
	store, err := tracking.NewSQLiteStore(tracking.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newRunsListCommand(dbPath *string) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tEXPERIMENT\tSTATUS\tSTARTED\tRESUMED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					run.ID, run.Experiment, run.Status,
					run.StartedAt.Format(time.RFC3339), run.ResumedCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newRunsShowCommand(dbPath *string) *cobra.Command {
	var eventLimit int

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Run:        %s\n", run.ID)
			fmt.Printf("Experiment: %s\n", run.Experiment)
			fmt.Printf("Status:     %s\n", run.Status)
			fmt.Printf("Started:    %s\n", run.StartedAt.Format(time.RFC3339))
			if run.CompletedAt != nil {
				fmt.Printf("Completed:  %s\n", run.CompletedAt.Format(time.RFC3339))
			}
			if run.ResumedCount > 0 {
				fmt.Printf("Resumed:    %d time(s)\n", run.ResumedCount)
			}
			if run.Error != nil {
				fmt.Printf("Error:      %s\n", *run.Error)
			}

			var params map[string]interface{}
			if err := json.Unmarshal([]byte(run.Parameters), &params); err == nil && len(params) > 0 {
				fmt.Println("Parameters:")
				for k, v := range params {
					fmt.Printf("  %s: %v\n", k, v)
				}
			}

			events, err := store.ListEventsByRun(ctx, run.ID, eventLimit, 0)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				fmt.Println("Events:")
				for _, event := range events {
					step := ""
					if event.Step != nil {
						step = " step=" + *event.Step
					}
					fmt.Printf("  [%s] %s%s %s\n",
						event.Timestamp.Format(time.RFC3339), event.Level, step, event.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&eventLimit, "events", 50, "maximum number of events to show")

	return cmd
}

func newRunsDeleteCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteRun(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Run %s deleted\n", args[0])
			return nil
		},
	}
}
