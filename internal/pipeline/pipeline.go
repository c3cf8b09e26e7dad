package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/logging"
	"github.com/canonical/docs-viewer/internal/outline"
	"github.com/canonical/docs-viewer/internal/sitemap"
	"github.com/canonical/docs-viewer/internal/snapshot"
	"github.com/canonical/docs-viewer/internal/storage"
)

// OutlineID is the id of the element that receives the rendered outline in
// published pages.
const OutlineID = "toc"

// Runner publishes the document for every configured language, then
// writes the search index snapshot and the sitemaps.
type Runner struct {
	Store     *i18n.Store
	Document  *content.Document
	Storage   *storage.FSStorage
	IndexPath string
	Sitemap   *sitemap.Generator
	Logger    *slog.Logger

	mu       sync.Mutex
	statuses []LanguageStatus
	failures [][]string
}

func (r *Runner) Run(ctx context.Context) error {
	if r.Store == nil || r.Document == nil || r.Storage == nil {
		return errors.New("publish runner missing dependencies")
	}
	logger := logging.OrDiscard(r.Logger)

	languages := r.Store.Languages()
	r.mu.Lock()
	r.statuses = make([]LanguageStatus, len(languages))
	r.failures = make([][]string, len(languages))
	for i, lang := range languages {
		r.statuses[i] = LanguageStatus{Language: lang.Code, Stage: "waiting"}
	}
	r.mu.Unlock()

	// Failing languages are logged by the store and reported per language
	// below.
	_ = r.Store.LoadAll(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i, lang := range languages {
		wg.Add(1)
		go func(idx int, code string) {
			defer wg.Done()
			err := r.publishLanguage(ctx, idx, code)
			var re *RenderError
			switch {
			case err == nil:
				return
			case errors.As(err, &re):
				r.recordFailure(idx, "render", code, re.Unwrap())
			default:
				errOnce.Do(func() { firstErr = err })
				r.mu.Lock()
				r.statuses[idx].Stage = "error"
				r.mu.Unlock()
			}
		}(i, lang.Code)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	if err := r.publishRoot(ctx); err != nil {
		return err
	}

	if err := r.writeSnapshot(ctx); err != nil {
		return err
	}

	if r.Sitemap != nil {
		if err := r.Sitemap.Generate(ctx, r.published()); err != nil {
			// Non-fatal: pages and index are already in place.
			logger.Error("sitemap generation failed", "error", err)
		}
	}

	var totalFailures int
	for _, failures := range r.failures {
		totalFailures += len(failures)
	}
	if totalFailures > 0 {
		logger.Warn("publish completed with failures", "count", totalFailures)
	}
	return nil
}

// Statuses returns a copy of the per-language progress.
func (r *Runner) Statuses() []LanguageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LanguageStatus(nil), r.statuses...)
}

// Failures returns the recorded failure messages of every language.
func (r *Runner) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.failures {
		out = append(out, f...)
	}
	return out
}

func (r *Runner) publishLanguage(ctx context.Context, idx int, code string) error {
	logger := logging.OrDiscard(r.Logger)
	r.setStage(idx, "rendering")

	m, ok := r.Store.Cached(code)
	if !ok {
		return &RenderError{Language: code, Err: errors.New("translations not loaded")}
	}

	keys := r.Document.Keys()
	missing := 0
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			missing++
		}
	}

	page, err := RenderPage(r.Document, code, r.Store.Lookuper(code))
	if err != nil {
		return &RenderError{Language: code, Err: err}
	}
	if err := r.Storage.WriteHTML(ctx, PagePath(code), page); err != nil {
		return fmt.Errorf("write page %s: %w", PagePath(code), err)
	}

	r.mu.Lock()
	r.statuses[idx].Stage = "done"
	r.statuses[idx].Keys = len(keys)
	r.statuses[idx].Missing = missing
	r.mu.Unlock()

	logger.Info("language published", "language", code, "keys", len(keys), "missing", missing)
	return nil
}

// publishRoot writes the default language page to the site root.
func (r *Runner) publishRoot(ctx context.Context) error {
	code := r.Store.DefaultLanguage()
	if _, ok := r.Store.Cached(code); !ok {
		return nil
	}
	page, err := RenderPage(r.Document, code, r.Store.Lookuper(code))
	if err != nil {
		return fmt.Errorf("render root page: %w", err)
	}
	if err := r.Storage.WriteHTML(ctx, PagePath(""), page); err != nil {
		return fmt.Errorf("write root page: %w", err)
	}
	return nil
}

func (r *Runner) writeSnapshot(ctx context.Context) error {
	if r.IndexPath == "" {
		return nil
	}
	loaded := r.Store.Snapshot()
	codes := make([]string, 0, len(loaded))
	for _, l := range loaded {
		codes = append(codes, l.Language.Code)
	}
	entries := index.Build(loaded)
	if err := snapshot.Write(ctx, r.IndexPath, entries, codes); err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}
	logging.OrDiscard(r.Logger).Info("index snapshot written", "path", r.IndexPath, "keys", len(entries), "languages", len(codes))
	return nil
}

// published lists the languages whose page was written.
func (r *Runner) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var codes []string
	for _, s := range r.statuses {
		if s.Stage == "done" {
			codes = append(codes, s.Language)
		}
	}
	return codes
}

func (r *Runner) setStage(idx int, stage string) {
	r.mu.Lock()
	r.statuses[idx].Stage = stage
	r.mu.Unlock()
}

func (r *Runner) recordFailure(idx int, stage, code string, err error) {
	message := strings.TrimSpace(fmt.Sprintf("%s %s: %v", stage, code, err))
	r.mu.Lock()
	r.failures[idx] = append(r.failures[idx], message)
	r.statuses[idx].Errors++
	r.statuses[idx].Stage = "error"
	r.mu.Unlock()

	logging.OrDiscard(r.Logger).Warn("publish failure", "stage", stage, "language", code, "error", err)
}

// Translated clones skeleton and applies the translations of code to it.
// The outline is built from the translated copy.
func Translated(skeleton *content.Document, code string, lookup content.Lookup) (*content.Document, *outline.Outline) {
	doc := skeleton.Clone()
	content.Translate(doc, lookup)
	if root := content.FindFirst(doc.Root, func(n *html.Node) bool { return n.DataAtom == atom.Html }); root != nil {
		content.SetAttr(root, "lang", code)
	}
	return doc, outline.Build(doc, lookup)
}

// RenderPage renders the full translated document with its outline placed
// in the element whose id is OutlineID, when the skeleton has one.
func RenderPage(skeleton *content.Document, code string, lookup content.Lookup) ([]byte, error) {
	doc, toc := Translated(skeleton, code, lookup)
	if err := embedOutline(doc, toc); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func embedOutline(doc *content.Document, toc *outline.Outline) error {
	target := content.FindFirst(doc.Root, func(n *html.Node) bool {
		id, _ := content.Attr(n, "id")
		return id == OutlineID
	})
	if target == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := toc.Render(&buf); err != nil {
		return err
	}
	nodes, err := html.ParseFragment(&buf, target)
	if err != nil {
		return fmt.Errorf("parse outline: %w", err)
	}
	content.ReplaceChildren(target, nodes...)
	return nil
}
