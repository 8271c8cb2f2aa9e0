package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/ladder/internal/batch"
	"github.com/MikeSquared-Agency/ladder/internal/table"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		dataDir string
		output  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Write one row per transcript in the data directory to the output table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if output != "" {
				cfg.Output = output
			}
			if workers > 0 {
				cfg.Workers = workers
			}

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
				Source:  "extract",
			}, a.builder, out, slog.Default(), a.runnerOptions()...)

			sum, err := r.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processing complete. %d rows from %d files (%d skipped, %d failed) saved to %s\n",
				sum.Rows, sum.Files, sum.Skipped, sum.Failed, cfg.Output)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "", "transcript directory (overrides LADDER_DATA_DIR)")
	cmd.Flags().StringVar(&output, "output", "", "output CSV file (overrides LADDER_OUTPUT)")
	cmd.Flags().IntVar(&workers, "workers", 0, "files processed at once (overrides LADDER_WORKERS)")
	return cmd
}
