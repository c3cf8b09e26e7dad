package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "docsearch",
	Short:         "Query the documentation search index",
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config JSON or YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// setup loads the configuration and a store over its locales.
func setup() (*config.Config, *i18n.Store, *slog.Logger, error) {
	logger := logging.BuildLogger(logLevel)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	store := i18n.NewStore(i18n.LanguagesFromConfig(cfg), cfg.DefaultLanguage, i18n.NewFetcher(cfg, logger), logger)
	return cfg, store, logger, nil
}
