package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/tweet-harvester/internal/app"
	"github.com/Adda-Baaj/tweet-harvester/internal/config"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "harvester --start YYYY-MM-DD (--account NAME | --hashtag TAG | --word 'a//b')",
		Short: "harvester collects search results day by day into a CSV file.",
		Long: "harvester walks a date range in fixed windows, scrolls each search result page to the end " +
			"and streams every unique record to <save-dir>/<target>_<start>_<end>.csv. " +
			"Failed attempts are retried until the range completes or the process is interrupted.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}
	f.register(cmd)
	return cmd
}

func run(cmd *cobra.Command, f flags) error {
	job, err := f.job(cmd.Flags())
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = f.headless
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", cfg.Redacted())

	ctx := cmd.Context()
	harvester, err := app.NewHarvester(ctx, cfg, job, log)
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err.Error())
		return err
	}

	if err := harvester.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.InfoObj("harvester interrupted", "output", harvester.OutputPath())
			return nil
		}
		return fmt.Errorf("harvester run: %w", err)
	}
	return nil
}
