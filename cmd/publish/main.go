package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/logging"
	"github.com/canonical/docs-viewer/internal/pipeline"
	"github.com/canonical/docs-viewer/internal/sitemap"
	"github.com/canonical/docs-viewer/internal/storage"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config JSON or YAML")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	languages := flag.String("languages", "", "Comma-separated list of languages to publish")
	output := flag.String("output", "", "Override public HTML output directory")
	flag.Parse()

	logger := logging.BuildLogger(*logLevel)

	if err := publish(logger, *configPath, *languages, *output); err != nil {
		logger.Error("publish failed", "error", err)
		os.Exit(1)
	}
}

func publish(logger *slog.Logger, configPath, languageList, output string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if output != "" {
		cfg.PublicHTMLDir = output
	}
	if cfg.PublicHTMLDir == "" {
		return errors.New("public_html_dir is required to publish")
	}

	languages, err := resolveLanguages(cfg, languageList)
	if err != nil {
		return fmt.Errorf("invalid language list: %w", err)
	}

	doc, err := pipeline.LoadDocument(cfg.Document)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	runner := &pipeline.Runner{
		Store:     i18n.NewStore(languages, cfg.DefaultLanguage, i18n.NewFetcher(cfg, logger), logger),
		Document:  doc,
		Storage:   storage.NewFSStorage(cfg.PublicHTMLDir),
		IndexPath: cfg.IndexPath(),
		Sitemap: &sitemap.Generator{
			Root:    cfg.PublicHTMLDir,
			SiteURL: cfg.SiteURL(),
			Logger:  logger,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runner.Run(ctx); err != nil {
		return err
	}

	for _, s := range runner.Statuses() {
		logger.Info("language status", "language", s.Language, "stage", s.Stage, "keys", s.Keys, "missing", s.Missing, "errors", s.Errors)
	}
	return nil
}

var errInvalidLanguage = errors.New("invalid language")

// resolveLanguages keeps the configured order. The default language is
// always published because every other language falls back to it.
func resolveLanguages(cfg *config.Config, languageList string) ([]i18n.Language, error) {
	all := i18n.LanguagesFromConfig(cfg)
	if strings.TrimSpace(languageList) == "" {
		return all, nil
	}

	wanted := map[string]bool{cfg.DefaultLanguage: true}
	for _, code := range strings.Split(languageList, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, errInvalidLanguage
		}
		wanted[code] = true
	}

	var out []i18n.Language
	for _, l := range all {
		if wanted[l.Code] {
			out = append(out, l)
			delete(wanted, l.Code)
		}
	}
	if len(wanted) > 0 {
		return nil, errInvalidLanguage
	}
	return out, nil
}
