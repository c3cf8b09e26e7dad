package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/canonical/docs-viewer/internal/index"
)

const batchSize = 500

// Writer stores index entries, committing every batchSize rows.
type Writer struct {
	mu         sync.Mutex
	db         *sql.DB
	insertStmt *sql.Stmt
	tx         *sql.Tx
	txStmt     *sql.Stmt
	count      int
	written    int
}

func NewWriter(path string) (*Writer, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT OR REPLACE INTO entries (key, text) VALUES (?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &Writer{
		db:         db,
		insertStmt: stmt,
	}, nil
}

func (w *Writer) Add(ctx context.Context, e index.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tx == nil {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		w.tx = tx
		w.txStmt = tx.Stmt(w.insertStmt)
	}

	if _, err := w.txStmt.ExecContext(ctx, e.Key, e.Text); err != nil {
		return fmt.Errorf("store entry %s: %w", e.Key, err)
	}

	w.written++
	w.count++
	if w.count >= batchSize {
		if err := w.flush(); err != nil {
			return err
		}
	}
	return nil
}

// SetLanguages records the language codes the entries were built from.
func (w *Writer) SetLanguages(ctx context.Context, codes []string) error {
	return w.setMeta(ctx, metaLanguages, strings.Join(codes, ","))
}

func (w *Writer) setMeta(ctx context.Context, name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	// The open batch holds the only connection.
	if err := w.flush(); err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (name, value) VALUES (?, ?)`, name, value); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

// Written reports how many entries have been added.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) flush() error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Commit()
	w.tx = nil
	w.txStmt = nil
	w.count = 0
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flush(); err != nil {
		return err
	}
	_, _ = w.db.Exec(`INSERT OR REPLACE INTO meta (name, value) VALUES (?, ?)`, metaBuiltAt, time.Now().UTC().Format(time.RFC3339))
	_ = w.insertStmt.Close()
	return w.db.Close()
}

// Write stores entries built from languages into a fresh snapshot at path.
func Write(ctx context.Context, path string, entries []index.Entry, languages []string) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Add(ctx, e); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.SetLanguages(ctx, languages); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
