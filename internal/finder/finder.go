// Package finder runs search passes over one rendered document: it resets
// the previous pass, matches the query against the index, highlights the
// located elements and filters the outline.
package finder

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/debounce"
	"github.com/canonical/docs-viewer/internal/highlight"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/logging"
	"github.com/canonical/docs-viewer/internal/outline"
)

// DefaultDebounce is the quiet window applied to Input.
const DefaultDebounce = 300 * time.Millisecond

type State int

const (
	StateIdle State = iota
	StateMatching
	StateEmpty
	StateHasMatches
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMatching:
		return "matching"
	case StateEmpty:
		return "empty"
	case StateHasMatches:
		return "has_matches"
	default:
		return "unknown"
	}
}

// Matcher resolves query words to translation keys. *index.Index
// implements it.
type Matcher interface {
	MatchWords(words []string) []string
}

// Result describes the state after a pass or a navigation step.
type Result struct {
	Query   string              `json:"query"`
	Keys    []string            `json:"keys"`
	Total   int                 `json:"total"`
	Current int                 `json:"current"`
	Status  string              `json:"status"`
	State   string              `json:"state"`
	Outline []outline.NodeState `json:"outline"`
}

type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnResult receives the result of every pass started by Input.
	OnResult func(Result)
	// Reveal is called with each match that becomes current.
	Reveal func(highlight.Match)
}

// Finder owns doc and its outline; callers must not touch either while
// the finder is in use. All methods are safe for concurrent use because
// debounced passes run on a timer goroutine.
type Finder struct {
	logger   *slog.Logger
	onResult func(Result)

	mu      sync.Mutex
	doc     *content.Document
	toc     *outline.Outline
	matcher Matcher
	hl      *highlight.Highlighter
	state   State
	query   string

	input *debounce.Debouncer[string]
}

func New(doc *content.Document, toc *outline.Outline, matcher Matcher, opts Options) *Finder {
	delay := opts.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	f := &Finder{
		logger:   logging.OrDiscard(opts.Logger),
		onResult: opts.OnResult,
		doc:      doc,
		toc:      toc,
		matcher:  matcher,
		hl:       highlight.New(doc, opts.Reveal),
	}
	f.input = debounce.New(delay, f.runInput)
	return f
}

// Search runs one full pass for query.
func (f *Finder) Search(query string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchLocked(query)
}

func (f *Finder) searchLocked(query string) Result {
	start := time.Now()
	f.hl.Reset()
	f.state = StateIdle
	f.query = query

	words := index.Words(query)
	if words == nil {
		f.toc.Reset()
		return f.resultLocked()
	}

	f.state = StateMatching
	elements := f.doc.Locate(f.matcher.MatchWords(words))
	nav := f.hl.Highlight(elements, words)

	matched := make([]*html.Node, 0, nav.Len())
	for _, m := range nav.Matches() {
		matched = append(matched, m.Element)
	}
	f.toc.Filter(matched, f.doc.Ranks(), true)

	if nav.Len() == 0 {
		f.state = StateEmpty
	} else {
		f.state = StateHasMatches
	}
	f.logger.Debug("search pass",
		"query", query,
		"matches", nav.Len(),
		"elapsed", time.Since(start))
	return f.resultLocked()
}

// Input schedules a pass for query once input has been quiet for the
// debounce window. Only the last query of a burst is searched.
func (f *Finder) Input(query string) {
	f.input.Trigger(query)
}

// Flush runs a pending debounced pass right away.
func (f *Finder) Flush() bool {
	return f.input.Flush()
}

func (f *Finder) runInput(query string) {
	res := f.Search(query)
	if f.onResult != nil {
		f.onResult(res)
	}
}

// Next moves to the following match, wrapping at the end.
func (f *Finder) Next() Result {
	return f.navigate(1)
}

// Prev moves to the preceding match, wrapping at the start.
func (f *Finder) Prev() Result {
	return f.navigate(-1)
}

func (f *Finder) navigate(dir int) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hl.Navigator().Navigate(dir)
	return f.resultLocked()
}

// Seek makes match i current.
func (f *Finder) Seek(i int) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hl.Navigator().Seek(i)
	return f.resultLocked()
}

// Clear drops any pending input and returns to idle.
func (f *Finder) Clear() Result {
	f.input.Cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hl.Reset()
	f.toc.Reset()
	f.state = StateIdle
	f.query = ""
	return f.resultLocked()
}

// Close stops debounced input. Pending passes are dropped.
func (f *Finder) Close() {
	f.input.Stop()
}

func (f *Finder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Finder) Result() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resultLocked()
}

func (f *Finder) resultLocked() Result {
	nav := f.hl.Navigator()
	return Result{
		Query:   f.query,
		Keys:    nav.Keys(),
		Total:   nav.Len(),
		Current: nav.Current(),
		Status:  nav.Status(),
		State:   f.state.String(),
		Outline: f.toc.States(),
	}
}

// RenderContent writes the content root, marks included.
func (f *Finder) RenderContent(w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return renderNode(w, f.doc.Main())
}

// RenderDocument writes the whole document.
func (f *Finder) RenderDocument(w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.Render(w)
}

// RenderOutline writes the outline in its current state.
func (f *Finder) RenderOutline(w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toc.Render(w)
}

func renderNode(w io.Writer, n *html.Node) error {
	if err := html.Render(w, n); err != nil {
		return fmt.Errorf("render content: %w", err)
	}
	return nil
}
