package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ortho-predict/internal/config"
	"github.com/ortho-predict/internal/logging"
	"github.com/ortho-predict/internal/pipeline"
	"github.com/ortho-predict/internal/runstore"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	dataDir    string
	logLevel   string
}

// app is the per-invocation wiring built from configuration.
type app struct {
	logger *logrus.Logger
	runner *pipeline.Runner
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "orthopredict",
		Short:         "Synthetic orthopedic condition prediction and treatment recommendation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to orthopredict.yaml")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default ../data)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(generateCmd(flags))
	rootCmd.AddCommand(cleanCmd(flags))
	rootCmd.AddCommand(trainCmd(flags))
	rootCmd.AddCommand(recommendCmd(flags))
	rootCmd.AddCommand(runCmd(flags))
	rootCmd.AddCommand(runsCmd(flags))
	return rootCmd
}

// setup loads configuration, applies flag overrides and opens the store.
func setup(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	manager, err := config.NewManager(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("data-dir") {
		if err := manager.Set("data_dir", flags.dataDir); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("log-level") {
		if err := manager.Set("logging.level", flags.logLevel); err != nil {
			return nil, err
		}
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := manager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := runstore.Open(cmd.Context(), cfg.Store, manager.SQLitePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	runner, err := pipeline.New(*cfg, manager.ModelPath(), store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{logger: logger, runner: runner}, nil
}

func (a *app) close() {
	if err := a.runner.Store().Close(); err != nil {
		a.logger.WithError(err).Warn("Closing run history failed")
	}
}

// withApp runs fn with a configured app and closes it afterwards.
func withApp(flags *globalFlags, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, flags)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
