// Package i18n loads and caches per-language translation sets.
//
// Every language is fetched at most once: concurrent Load calls for the same
// language share a single fetch, and later calls return the cached map. The
// cache is only replaced wholesale by Reload.
package i18n

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/logging"
)

// FetchTimeout bounds one shared locale fetch.
const FetchTimeout = 2 * time.Minute

// ErrUnknownLanguage is returned for language codes that are not configured.
var ErrUnknownLanguage = errors.New("unknown language")

// Language is one supported locale.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag,omitempty"`
}

// Map holds the raw, possibly HTML-bearing, text of every translatable unit
// of one language, keyed by unit key.
type Map map[string]string

// Loaded pairs a language with its cached translation set.
type Loaded struct {
	Language Language
	Map      Map
}

// LanguagesFromConfig converts the configured language list, keeping order.
func LanguagesFromConfig(cfg *config.Config) []Language {
	langs := make([]Language, 0, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs = append(langs, Language{Code: l.Code, Name: l.Name, Flag: l.Flag})
	}
	return langs
}

type Store struct {
	languages   []Language
	defaultCode string
	fetcher     Fetcher
	logger      *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]Map
}

// NewStore builds a store for languages, in the given order. defaultCode is
// used for fallbacks and must be one of the languages; when empty the first
// language is the default.
func NewStore(languages []Language, defaultCode string, fetcher Fetcher, logger *slog.Logger) *Store {
	if defaultCode == "" && len(languages) > 0 {
		defaultCode = languages[0].Code
	}
	return &Store{
		languages:   append([]Language(nil), languages...),
		defaultCode: defaultCode,
		fetcher:     fetcher,
		logger:      logging.OrDiscard(logger),
		cache:       make(map[string]Map, len(languages)),
	}
}

// Languages returns the configured languages in index order.
func (s *Store) Languages() []Language {
	return append([]Language(nil), s.languages...)
}

func (s *Store) DefaultLanguage() string {
	return s.defaultCode
}

// Language looks up a configured language by code.
func (s *Store) Language(code string) (Language, bool) {
	for _, l := range s.languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// Resolve returns code when it is configured and the default language
// otherwise.
func (s *Store) Resolve(code string) string {
	if _, ok := s.Language(code); ok {
		return code
	}
	return s.defaultCode
}

// Cached returns the translation set of code if it has been loaded.
func (s *Store) Cached(code string) (Map, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.cache[code]
	return m, ok
}

// Snapshot returns every loaded language in configured order. Languages
// that failed to load are absent.
func (s *Store) Snapshot() []Loaded {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Loaded, 0, len(s.cache))
	for _, l := range s.languages {
		if m, ok := s.cache[l.Code]; ok {
			out = append(out, Loaded{Language: l, Map: m})
		}
	}
	return out
}

// Load returns the translation set of code, fetching it on first use.
// Concurrent callers share one fetch and receive the same map. Failed
// fetches are not cached.
//
// The shared fetch is detached from ctx and bounded by FetchTimeout, so a
// caller giving up only abandons its own wait.
func (s *Store) Load(ctx context.Context, code string) (Map, error) {
	if _, ok := s.Language(code); !ok {
		return nil, fmt.Errorf("load locale %s: %w", code, ErrUnknownLanguage)
	}
	if m, ok := s.Cached(code); ok {
		return m, nil
	}

	ch := s.group.DoChan(code, func() (any, error) {
		if m, ok := s.Cached(code); ok {
			return m, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		m, err := s.fetcher.Fetch(fetchCtx, code)
		if err != nil {
			return nil, fmt.Errorf("load locale %s: %w", code, err)
		}
		return s.store(code, m), nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load locale %s: %w", code, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Map), nil
	}
}

// store caches m unless another map is already cached for code, and
// returns whichever map is cached.
func (s *Store) store(code string, m Map) Map {
	if m == nil {
		m = Map{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cache[code]; ok {
		return existing
	}
	s.cache[code] = m
	return m
}

// LoadAll loads every language in parallel and waits for all of them to
// settle. A failing language is logged and does not stop the others; the
// joined failures are returned.
func (s *Store) LoadAll(ctx context.Context) error {
	errs := make([]error, len(s.languages))
	var wg sync.WaitGroup
	for i, lang := range s.languages {
		wg.Add(1)
		go func(idx int, code string) {
			defer wg.Done()
			if _, err := s.Load(ctx, code); err != nil {
				s.logger.Warn("locale unavailable", "language", code, "error", err)
				errs[idx] = err
			}
		}(i, lang.Code)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Reload refetches every language and swaps the whole cache at once. A
// language that fails to refetch keeps its previous translation set.
func (s *Store) Reload(ctx context.Context) error {
	fresh := make([]Map, len(s.languages))
	errs := make([]error, len(s.languages))
	var wg sync.WaitGroup
	for i, lang := range s.languages {
		wg.Add(1)
		go func(idx int, code string) {
			defer wg.Done()
			m, err := s.fetcher.Fetch(ctx, code)
			if err != nil {
				s.logger.Warn("locale reload failed", "language", code, "error", err)
				errs[idx] = fmt.Errorf("reload locale %s: %w", code, err)
				return
			}
			if m == nil {
				m = Map{}
			}
			fresh[idx] = m
		}(i, lang.Code)
	}
	wg.Wait()

	s.mu.Lock()
	next := make(map[string]Map, len(s.languages))
	for i, lang := range s.languages {
		switch {
		case fresh[i] != nil:
			next[lang.Code] = fresh[i]
		case s.cache[lang.Code] != nil:
			next[lang.Code] = s.cache[lang.Code]
		}
	}
	s.cache = next
	s.mu.Unlock()

	for _, lang := range s.languages {
		s.group.Forget(lang.Code)
	}
	return errors.Join(errs...)
}

// Lookup returns the raw text of key in code, falling back to the default
// language when code has no entry for key.
func (s *Store) Lookup(code, key string) (string, bool) {
	if m, ok := s.Cached(code); ok {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	if code == s.defaultCode {
		return "", false
	}
	if m, ok := s.Cached(s.defaultCode); ok {
		v, ok := m[key]
		return v, ok
	}
	return "", false
}

// Lookuper returns Lookup bound to code.
func (s *Store) Lookuper(code string) func(key string) (string, bool) {
	return func(key string) (string, bool) {
		return s.Lookup(code, key)
	}
}
