package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zono819/signal-trader/internal/app"
	"github.com/zono819/signal-trader/internal/infrastructure/config"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
	"github.com/zono819/signal-trader/internal/infrastructure/tradelog"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)

	root := &cobra.Command{
		Use:           "trader",
		Short:         "Model-driven periodic trading loop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newPositionsCmd(&configPath))
	root.AddCommand(newTradesCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	var (
		once    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			out, err := logger.OpenOutput(cfg.Log.Output)
			if err != nil {
				return err
			}
			defer out.Close()
			log := logger.New(logger.ParseLevel(cfg.Log.Level), out)
			if verbose {
				log.SetLevel(logger.LevelDebug)
			}
			logger.SetDefault(log)

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once {
				if _, err := a.Scheduler().Restore(ctx); err != nil {
					return err
				}
				_, err := a.Scheduler().RunOnce(ctx)
				return err
			}

			log.Info("Starting trader %s, run %s", version, a.RunID)
			if err := a.Run(ctx); err != nil {
				return err
			}
			log.Info("Trader stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level regardless of log.level")
	return cmd
}

func newPositionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show open positions from the snapshot, valued at the latest prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rep, err := app.LoadPositions(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPositions(rep))
			return nil
		},
	}
}

func newTradesCmd(configPath *string) *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Print the trade log of one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			when := time.Now()
			if day != "" {
				when, err = time.ParseInLocation("2006-01-02", day, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --day %q: want YYYY-MM-DD", day)
				}
			}
			entries, err := tradelog.New(cfg.LogFolder).ReadDay(cmd.Context(), when)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTrades(when, entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to show, YYYY-MM-DD (default today)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "signal-trader %s (built: %s)\n", version, buildTime)
		},
	}
}

