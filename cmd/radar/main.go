// Command radar runs the content-radar services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
)

var (
	envFiles []string

	config *cfg.Config
	logger log.Logger
	loader *cfg.ViperLoader

	rootCmd = &cobra.Command{
		Use:               "radar",
		Short:             "Crawl, classify and report on social media content",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the config (default .env)")
	rootCmd.AddCommand(serveCmd, consumeCmd, apifyWorkerCmd, pipelineCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads .env, the yaml config and the logger shared by every subcommand.
func setup(cmd *cobra.Command, args []string) error {
	if err := cfg.LoadDotEnv(envFiles...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	viperLoader, err := cfg.NewViperLoader()
	if err != nil {
		return err
	}
	l, err := cfg.NewLoader(viperLoader)
	if err != nil {
		return err
	}
	config, err = l.Load()
	if err != nil {
		return err
	}
	loader = viperLoader

	logger, err = log.NewLoggerFromConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
