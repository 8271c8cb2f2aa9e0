package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/ladder/internal/batch"
	"github.com/MikeSquared-Agency/ladder/internal/table"
	"github.com/MikeSquared-Agency/ladder/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Extract the data directory, then add a row for every new transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			out, err := table.Create(cfg.Output, cfg.Categories)
			if err != nil {
				return err
			}
			defer out.Close()

			r := batch.NewRunner(batch.Config{
				DataDir: cfg.DataDir,
				Output:  cfg.Output,
				Workers: cfg.Workers,
				Source:  "watch",
			}, a.builder, out, slog.Default(), a.runnerOptions()...)

			// Watch before the first batch so files created during it are seen.
			w, err := watcher.New(cfg.DataDir, r.ProcessFile, batch.IsTranscript, slog.Default(), cfg.Workers, watcher.DefaultDelay)
			if err != nil {
				return err
			}
			defer w.Close()

			if _, err := r.Run(ctx); err != nil {
				return err
			}
			return w.Start(ctx)
		},
	}
}
