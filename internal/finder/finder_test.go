package finder

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/highlight"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/outline"
)

const page = `<html><body><div class="content-wrapper">
<h1 id="greet" data-key="h1_greet">Salutations</h1>
<p data-key="greeting">Bonjour monde</p>
<h1 id="animals" data-key="h1_animals">Animaux</h1>
<p data-key="k1">The quick brown fox</p>
<p data-key="k2">A quick reply</p>
</div></body></html>`

func newFinder(t *testing.T, opts Options) (*Finder, *index.Index) {
	t.Helper()
	doc, err := content.ParseString(page)
	require.NoError(t, err)

	ix := index.New(0, nil)
	ix.Publish(index.Build([]i18n.Loaded{
		{Language: i18n.Language{Code: "en"}, Map: i18n.Map{
			"greeting": "Hello world",
			"k1":       "The quick brown fox",
			"k2":       "A quick reply",
			"h1_greet": "Greetings",
		}},
		{Language: i18n.Language{Code: "fr"}, Map: i18n.Map{
			"greeting": "Bonjour monde",
			"h1_greet": "Salutations",
		}},
	}))

	f := New(doc, outline.Build(doc, nil), ix, opts)
	t.Cleanup(f.Close)
	return f, ix
}

func contentHTML(t *testing.T, f *Finder) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, f.RenderContent(&buf))
	return buf.String()
}

func TestSearchCrossLanguageIndexOnly(t *testing.T) {
	f, _ := newFinder(t, Options{})

	res := f.Search("hello")

	assert.Equal(t, []string{"greeting"}, res.Keys)
	assert.Equal(t, "1 / 1", res.Status)
	assert.Equal(t, StateHasMatches.String(), res.State)
	assert.Contains(t, contentHTML(t, f), highlight.IndexOnlyClass)
	assert.Equal(t, []outline.NodeState{
		{ID: "greet", Visible: true, Expanded: true},
		{ID: "animals", Visible: false, Expanded: false},
	}, res.Outline)
}

func TestSearchNoMatchesHidesOutline(t *testing.T) {
	f, _ := newFinder(t, Options{})

	res := f.Search("ab")

	assert.Empty(t, res.Keys)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, -1, res.Current)
	assert.Equal(t, "0 / 0", res.Status)
	assert.Equal(t, StateEmpty, f.State())
	for _, n := range res.Outline {
		assert.False(t, n.Visible, n.ID)
	}
}

func TestShortQueryIsIdle(t *testing.T) {
	f, _ := newFinder(t, Options{})
	f.Search("quick")

	res := f.Search(" q ")

	assert.Equal(t, StateIdle, f.State())
	assert.Equal(t, "0 / 0", res.Status)
	assert.NotContains(t, contentHTML(t, f), "<mark")
	assert.True(t, res.Outline[0].Visible && res.Outline[1].Visible)
}

func TestSearchBeforeIndexReady(t *testing.T) {
	doc, err := content.ParseString(page)
	require.NoError(t, err)
	f := New(doc, outline.Build(doc, nil), index.New(0, nil), Options{})
	defer f.Close()

	res := f.Search("quick")
	assert.Empty(t, res.Keys)
	assert.Equal(t, "0 / 0", res.Status)
}

func TestEachPassReplacesThePrevious(t *testing.T) {
	f, _ := newFinder(t, Options{})

	first := f.Search("quick")
	require.Equal(t, []string{"k1", "k2"}, first.Keys)

	second := f.Search("fox")
	assert.Equal(t, []string{"k1"}, second.Keys)
	out := contentHTML(t, f)
	assert.Contains(t, out, `<mark class="search-mark">fox</mark>`)
	assert.NotContains(t, out, `<mark class="search-mark">quick</mark>`)
}

func TestNextPrevAndSeek(t *testing.T) {
	var revealed []string
	f, _ := newFinder(t, Options{Reveal: func(m highlight.Match) { revealed = append(revealed, m.Key) }})

	res := f.Search("quick")
	require.Equal(t, "1 / 2", res.Status)

	assert.Equal(t, "2 / 2", f.Next().Status)
	assert.Equal(t, "1 / 2", f.Next().Status)
	assert.Equal(t, "2 / 2", f.Prev().Status)
	assert.Equal(t, "1 / 2", f.Seek(4).Status)
	assert.Equal(t, []string{"k1", "k2", "k1", "k2", "k1"}, revealed)
}

func TestClearRestoresContent(t *testing.T) {
	f, _ := newFinder(t, Options{})
	before := contentHTML(t, f)

	f.Search("quick fox")
	require.NotEqual(t, before, contentHTML(t, f))

	res := f.Clear()
	assert.Equal(t, before, contentHTML(t, f))
	assert.Equal(t, "", res.Query)
	assert.Equal(t, StateIdle.String(), res.State)
	assert.Equal(t, "0 / 0", res.Status)
}

func TestInputIsDebounced(t *testing.T) {
	var (
		mu      sync.Mutex
		results []Result
		calls   atomic.Int32
	)
	f, _ := newFinder(t, Options{
		Debounce: 30 * time.Millisecond,
		OnResult: func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			calls.Add(1)
		},
	})

	for _, q := range []string{"q", "qu", "qui", "quick", "quick f"} {
		f.Input(q)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "quick f", results[0].Query)
	assert.Equal(t, []string{"k1"}, results[0].Keys)
}

func TestClearDropsPendingInput(t *testing.T) {
	var calls atomic.Int32
	f, _ := newFinder(t, Options{
		Debounce: 20 * time.Millisecond,
		OnResult: func(Result) { calls.Add(1) },
	})

	f.Input("quick")
	f.Clear()
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestFlushRunsPendingInput(t *testing.T) {
	var got atomic.Value
	f, _ := newFinder(t, Options{
		Debounce: time.Hour,
		OnResult: func(r Result) { got.Store(r) },
	})

	f.Input("reply")
	require.True(t, f.Flush())
	res, ok := got.Load().(Result)
	require.True(t, ok)
	assert.Equal(t, []string{"k2"}, res.Keys)
	assert.False(t, f.Flush())
}
