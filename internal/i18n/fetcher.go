package i18n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/storage"
)

const (
	fetchAttempts   = 3
	maxLocaleBytes  = 16 << 20
	localesURLPath  = "/locales/"
	localeExtension = ".json"
)

// Fetcher retrieves the raw translation set of one language.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (Map, error)
}

// NewFetcher reads locales from cfg.LocalesDir when set and downloads them
// from cfg.LocalesURL otherwise.
func NewFetcher(cfg *config.Config, logger *slog.Logger) Fetcher {
	if cfg.LocalesDir != "" {
		return NewDirFetcher(cfg.LocalesDir)
	}
	f := NewHTTPFetcher(cfg.LocalesURL)
	f.Logger = logger
	return f
}

// HTTPFetcher downloads {BaseURL}/locales/{code}.json.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: baseURL,
		Client:  http.DefaultClient,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, code string) (Map, error) {
	src := strings.TrimSuffix(f.BaseURL, "/") + localesURLPath + code + localeExtension

	var lastErr error
	for attempt := range fetchAttempts {
		if attempt > 0 {
			if f.Logger != nil {
				f.Logger.Warn("retrying locale download", "url", src, "attempt", attempt+1, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		m, err := f.fetchOnce(ctx, src)
		if err == nil {
			return m, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, src string) (Map, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download locale: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download locale: status %s", resp.Status)
	}

	return decodeMap(io.LimitReader(resp.Body, maxLocaleBytes))
}

// DirFetcher reads {code}.json from a locale directory.
type DirFetcher struct {
	Storage *storage.FSStorage
}

func NewDirFetcher(dir string) *DirFetcher {
	return &DirFetcher{Storage: storage.NewFSStorage(dir)}
}

func (f *DirFetcher) Fetch(ctx context.Context, code string) (Map, error) {
	raw, err := f.Storage.ReadFile(ctx, code+localeExtension)
	if err != nil {
		return nil, err
	}
	return decodeMap(bytes.NewReader(raw))
}

func decodeMap(r io.Reader) (Map, error) {
	var m Map
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode locale: %w", err)
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}
