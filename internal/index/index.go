// Package index builds the cross-language search index and answers queries
// against it.
//
// An index entry holds, for one translation key, the plain text of that key
// in every loaded language, concatenated and lower-cased. Queries match keys
// whose entry contains every query word, so a unit is found even when the
// words only occur in a language other than the one on screen.
package index

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/logging"
)

// MinQueryLength is the shortest trimmed query, in runes, that is evaluated.
const MinQueryLength = 2

const defaultCacheSize = 256

// ErrNotReady is returned by Entries before the first build has completed.
var ErrNotReady = errors.New("search index not ready")

type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Entry is the searchable text of one translation key.
type Entry struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Source provides translation sets to index. *i18n.Store implements it.
type Source interface {
	LoadAll(ctx context.Context) error
	Snapshot() []i18n.Loaded
}

// published is one immutable entry set together with the query cache that
// belongs to it.
type published struct {
	entries []Entry
	cache   *lru.Cache[string, []string]
}

// Index is safe for concurrent use. Entry sets are swapped atomically, so a
// query sees either the previous set or the next one, never a partial one.
type Index struct {
	Logger    *slog.Logger
	CacheSize int

	state   atomic.Int32
	current atomic.Pointer[published]
}

func New(cacheSize int, logger *slog.Logger) *Index {
	return &Index{Logger: logger, CacheSize: cacheSize}
}

func (ix *Index) State() State {
	return State(ix.state.Load())
}

func (ix *Index) Ready() bool {
	return ix.State() == StateReady
}

// Len reports the number of published entries.
func (ix *Index) Len() int {
	if p := ix.current.Load(); p != nil {
		return len(p.entries)
	}
	return 0
}

// Prepare loads every language from src and publishes a fresh index. A
// language that fails to load contributes nothing; the index still becomes
// ready. While an earlier index is published it keeps serving queries until
// the new one replaces it.
func (ix *Index) Prepare(ctx context.Context, src Source) error {
	logger := logging.OrDiscard(ix.Logger)
	ix.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading))

	start := time.Now()
	loadErr := src.LoadAll(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	loaded := src.Snapshot()
	ix.Publish(Build(loaded))

	logger.Info("search index ready",
		"keys", ix.Len(),
		"languages", len(loaded),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return loadErr
}

// Rebuild indexes whatever src has cached, without loading.
func (ix *Index) Rebuild(src Source) {
	ix.Publish(Build(src.Snapshot()))
}

// Restore publishes entries read from a snapshot.
func (ix *Index) Restore(entries []Entry) {
	entries = slices.Clone(entries)
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	ix.Publish(entries)
}

// Publish swaps in entries and marks the index ready.
func (ix *Index) Publish(entries []Entry) {
	size := ix.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, []string](size)
	ix.current.Store(&published{entries: entries, cache: cache})
	ix.state.Store(int32(StateReady))
}

// Entries returns the published entries, sorted by key.
func (ix *Index) Entries() ([]Entry, error) {
	p := ix.current.Load()
	if p == nil || !ix.Ready() {
		return nil, ErrNotReady
	}
	return slices.Clone(p.entries), nil
}

// Build computes one entry per key found in any of the loaded translation
// sets. Languages are visited in the given order; each contributes the
// plain text of its non-empty value followed by a space.
func Build(loaded []i18n.Loaded) []Entry {
	keys := make(map[string]struct{})
	for _, l := range loaded {
		for k := range l.Map {
			keys[k] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	slices.Sort(sorted)

	lower := cases.Lower(language.Und)
	entries := make([]Entry, 0, len(sorted))
	var b strings.Builder
	for _, key := range sorted {
		b.Reset()
		for _, l := range loaded {
			raw, ok := l.Map[key]
			if !ok || raw == "" {
				continue
			}
			b.WriteString(content.PlainText(raw))
			b.WriteByte(' ')
		}
		entries = append(entries, Entry{
			Key:  key,
			Text: lower.String(strings.TrimSpace(b.String())),
		})
	}
	return entries
}

// Words splits a query into lower-cased search words. Queries shorter than
// MinQueryLength after trimming yield nil.
func Words(query string) []string {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil
	}
	words := strings.Fields(cases.Lower(language.Und).String(query))
	if len(words) == 0 {
		return nil
	}
	return words
}

// Match returns the keys whose entry contains every word of query, in key
// order. It returns nil for short queries and before the index is ready.
func (ix *Index) Match(query string) []string {
	return ix.MatchWords(Words(query))
}

// MatchWords is Match for a query already split by Words.
func (ix *Index) MatchWords(words []string) []string {
	if len(words) == 0 || !ix.Ready() {
		return nil
	}
	p := ix.current.Load()
	if p == nil {
		return nil
	}

	cacheKey := strings.Join(words, "\x00")
	if p.cache != nil {
		if keys, ok := p.cache.Get(cacheKey); ok {
			return slices.Clone(keys)
		}
	}

	var keys []string
	for _, e := range p.entries {
		if containsAll(e.Text, words) {
			keys = append(keys, e.Key)
		}
	}
	if p.cache != nil {
		p.cache.Add(cacheKey, keys)
	}
	return slices.Clone(keys)
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}
