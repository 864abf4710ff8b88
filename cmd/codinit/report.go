package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rhuss/codinit/pkg/report"
	"github.com/rhuss/codinit/pkg/storage"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		limit int
		order string
	)

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Print recorded runs, or the tasks of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, a.cfg.Storage)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", a.cfg.Storage.Type, err)
			}
			defer store.Close()

			if len(args) == 1 {
				return printRun(ctx, cmd.OutOrStdout(), store, args[0])
			}
			return printRuns(ctx, cmd.OutOrStdout(), store, storage.ListOptions{Limit: limit, Order: order})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().StringVar(&order, "order", "desc", "\"asc\" or \"desc\" by timestamp")
	return cmd
}

func printRuns(ctx context.Context, w io.Writer, store storage.RunStore, opts storage.ListOptions) error {
	list, err := store.ListRuns(ctx, opts)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(list.Data) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	report.Runs(w, list.Data)
	return nil
}

func printRun(ctx context.Context, w io.Writer, store storage.RunStore, id string) error {
	run, err := store.GetRun(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("reading run %s: %w", id, err)
	}
	report.Tasks(w, run)
	return nil
}
