package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/canonical/docs-viewer/internal/index"
)

// ErrLanguageMismatch is returned when a snapshot holds languages that are
// not configured.
var ErrLanguageMismatch = errors.New("snapshot languages do not match configuration")

// Meta describes a stored snapshot.
type Meta struct {
	Languages []string  `json:"languages"`
	BuiltAt   time.Time `json:"built_at"`
	Entries   int       `json:"entries"`
}

// Missing returns the codes in configured that the snapshot was built
// without, in the given order.
func (m Meta) Missing(configured []string) []string {
	var out []string
	for _, code := range configured {
		if !slices.Contains(m.Languages, code) {
			out = append(out, code)
		}
	}
	return out
}

type Reader struct {
	db *sql.DB
}

func Open(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// Entries returns every stored entry, sorted by key.
func (r *Reader) Entries(ctx context.Context) ([]index.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, text FROM entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]index.Entry, 0)
	for rows.Next() {
		var e index.Entry
		if err := rows.Scan(&e.Key, &e.Text); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Match answers a query straight from the snapshot, with the same
// semantics as index.Index.Match: keys whose text contains every word.
func (r *Reader) Match(ctx context.Context, query string) ([]string, error) {
	words := index.Words(query)
	if words == nil {
		return nil, nil
	}

	q := `SELECT key FROM entries WHERE 1 = 1`
	args := make([]any, 0, len(words))
	for _, w := range words {
		q += ` AND instr(text, ?) > 0`
		args = append(args, w)
	}
	q += ` ORDER BY key`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("match query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (r *Reader) Meta(ctx context.Context) (Meta, error) {
	var m Meta
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&m.Entries); err != nil {
		return Meta{}, fmt.Errorf("count entries: %w", err)
	}

	langs, err := r.meta(ctx, metaLanguages)
	if err != nil {
		return Meta{}, err
	}
	if langs != "" {
		m.Languages = strings.Split(langs, ",")
	}

	built, err := r.meta(ctx, metaBuiltAt)
	if err != nil {
		return Meta{}, err
	}
	if built != "" {
		if t, err := time.Parse(time.RFC3339, built); err == nil {
			m.BuiltAt = t
		}
	}
	return m, nil
}

func (r *Reader) meta(ctx context.Context, name string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return v, nil
}

// Load reads the snapshot at path into ix. When configured is non-nil, a
// snapshot holding any other language is refused and ix is left untouched.
func Load(ctx context.Context, path string, ix *index.Index, configured []string) (Meta, error) {
	if _, err := os.Stat(path); err != nil {
		return Meta{}, fmt.Errorf("open snapshot: %w", err)
	}
	r, err := Open(path)
	if err != nil {
		return Meta{}, err
	}
	defer func() { _ = r.Close() }()

	entries, err := r.Entries(ctx)
	if err != nil {
		return Meta{}, err
	}
	meta, err := r.Meta(ctx)
	if err != nil {
		return Meta{}, err
	}
	if configured != nil {
		for _, code := range meta.Languages {
			if !slices.Contains(configured, code) {
				return meta, fmt.Errorf("restore %s: %w: %q", path, ErrLanguageMismatch, code)
			}
		}
	}
	ix.Restore(entries)
	return meta, nil
}
