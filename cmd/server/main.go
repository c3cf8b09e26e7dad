package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/logging"
	"github.com/canonical/docs-viewer/internal/patchnotes"
	"github.com/canonical/docs-viewer/internal/pipeline"
	"github.com/canonical/docs-viewer/internal/snapshot"
	"github.com/canonical/docs-viewer/internal/web"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config JSON or YAML")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	addr := flag.String("addr", ":8080", "HTTP bind address")
	flag.Parse()

	logger := logging.BuildLogger(*logLevel)

	if err := serve(logger, *configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(logger *slog.Logger, configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	doc, err := pipeline.LoadDocument(cfg.Document)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := i18n.NewStore(i18n.LanguagesFromConfig(cfg), cfg.DefaultLanguage, i18n.NewFetcher(cfg, logger), logger)
	ix := index.New(cfg.CacheSize(), logger)

	// A snapshot answers queries until the live index is built.
	if path := cfg.IndexPath(); path != "" {
		codes := make([]string, 0, len(cfg.Languages))
		for _, l := range cfg.Languages {
			codes = append(codes, l.Code)
		}
		meta, err := snapshot.Load(ctx, path, ix, codes)
		switch {
		case errors.Is(err, snapshot.ErrLanguageMismatch):
			logger.Warn("index snapshot skipped", "path", path, "languages", meta.Languages, "error", err)
		case err != nil:
			logger.Info("no index snapshot", "path", path, "error", err)
		default:
			logger.Info("index snapshot restored", "path", path, "keys", meta.Entries, "built_at", meta.BuiltAt)
			if missing := meta.Missing(codes); len(missing) > 0 {
				logger.Warn("index snapshot lacks languages", "path", path, "missing", missing)
			}
		}
	}

	var notes []patchnotes.Note
	if cfg.PatchNotes != "" {
		notes, err = patchnotes.Load(cfg.PatchNotes)
		if err != nil {
			logger.Warn("patch notes unavailable", "path", cfg.PatchNotes, "error", err)
		}
	}

	server := web.NewServer(cfg, web.Deps{
		Store:      store,
		Index:      ix,
		Document:   doc,
		PatchNotes: notes,
	}, logger)

	go func() {
		if err := ix.Prepare(ctx, store); err != nil {
			logger.Warn("search index built without some languages", "error", err)
		}
		server.Invalidate()
	}()

	if cfg.LocalesDir != "" {
		err := i18n.Watch(ctx, cfg.LocalesDir, cfg.Debounce(), logger, func() {
			if err := store.Reload(ctx); err != nil {
				logger.Warn("locale reload incomplete", "error", err)
			}
			ix.Rebuild(store)
			server.Invalidate()
			logger.Info("translations reloaded", "keys", ix.Len())
		})
		if err != nil {
			logger.Warn("locale watcher unavailable", "error", err)
		}
	}

	return server.ListenAndServe(addr)
}
