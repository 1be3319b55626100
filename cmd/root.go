// Package cmd implements the easyread CLI using Cobra.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/config"
	"github.com/gaurav-prasanna/easyread/core/collect"
	"github.com/gaurav-prasanna/easyread/core/dispatch"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/core/rewrite"
	"github.com/gaurav-prasanna/easyread/prefs"
)

var (
	// Flags
	flagConfig   string
	flagLogLevel string
	flagPrefs    string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "easyread",
	Short: "easyread rewrites web pages into easier-to-read text",
	Long: `easyread finds the readable text of a web page, sends it to a language model
in small batches and writes the simplified (optionally translated) text back
into the page, keeping every change reversible.

Usage:
  easyread rewrite <url|file> [flags]
  easyread serve [flags]
  easyread prefs set|get|list|unset`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagPrefs, "prefs", "", "preferences database path")
}

// setup loads configuration and attaches the logger to the command context.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagPrefs != "" {
		cfg.Prefs.Path = flagPrefs
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return errors.Errorf("log level %q: %w", cfg.Log.Level, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}

// Execute runs the root command. Ctrl-C cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// openPrefs opens the preferences database named by the config.
func openPrefs(ctx context.Context) (*prefs.Store, error) {
	store, err := prefs.Open(ctx, cfg.Prefs.Path)
	if err != nil {
		return nil, errors.Errorf("opening preferences: %w", err)
	}
	return store, nil
}

// newDispatcher builds the pipeline with the credential resolved from the
// stored preferences first, then config and environment.
func newDispatcher(ctx context.Context, store *prefs.Store) (*dispatch.Dispatcher, error) {
	key, err := prefs.APIKey(ctx, store, cfg.API.Key)
	if err != nil {
		return nil, err
	}
	client := rewrite.New(cfg.ClientOptions(key))

	col := collect.New(cfg.Pipeline.MinTextLength)
	col.DedupeNested = cfg.Pipeline.DedupeNested
	col.SkipProcessed = cfg.Pipeline.SkipProcessed

	return dispatch.New(client,
		dispatch.WithBatchSize(cfg.Pipeline.BatchSize),
		dispatch.WithLocator(locate.New(cfg.Pipeline.MinContentLength)),
		dispatch.WithCollector(col),
	), nil
}
