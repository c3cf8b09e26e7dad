package highlight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
)

func parse(t *testing.T, body string) *content.Document {
	t.Helper()
	doc, err := content.ParseString(`<html><body><div class="content-wrapper">` + body + `</div></body></html>`)
	require.NoError(t, err)
	return doc
}

func marks(n *html.Node) []string {
	var out []string
	for _, m := range content.FindAll(n, isMark) {
		out = append(out, content.TextContent(m))
	}
	return out
}

func currentElements(doc *content.Document) []*html.Node {
	return content.FindAll(doc.Root, func(n *html.Node) bool { return content.HasClass(n, CurrentClass) })
}

func TestIndexOnlyMatchAcrossLanguages(t *testing.T) {
	ix := index.New(0, nil)
	ix.Publish(index.Build([]i18n.Loaded{
		{Language: i18n.Language{Code: "en"}, Map: i18n.Map{"greeting": "Hello world"}},
		{Language: i18n.Language{Code: "fr"}, Map: i18n.Map{"greeting": "Bonjour monde"}},
	}))
	doc := parse(t, `<p data-key="greeting">Bonjour monde</p>`)

	words := index.Words("hello")
	elements := doc.Locate(ix.MatchWords(words))
	nav := New(doc, nil).Highlight(elements, words)

	require.Equal(t, 1, nav.Len())
	m := nav.Matches()[0]
	assert.True(t, m.IndexOnly)
	assert.Zero(t, m.Spans)
	assert.Equal(t, "greeting", m.Key)
	assert.True(t, content.HasClass(m.Element, IndexOnlyClass))
	assert.Equal(t, "1 / 1", nav.Status())
	assert.Empty(t, marks(doc.Main()))
}

func TestWordFallbackWhenPhraseMissing(t *testing.T) {
	doc := parse(t, `<p data-key="k1">The quick brown fox</p>`)
	h := New(doc, nil)

	nav := h.Highlight(doc.Locate([]string{"k1"}), index.Words("quick fox"))

	require.Equal(t, 1, nav.Len(), "match granularity is per element")
	assert.Equal(t, 2, nav.Matches()[0].Spans)
	assert.False(t, nav.Matches()[0].IndexOnly)
	assert.Equal(t, []string{"quick", "fox"}, marks(doc.Main()))
	assert.Equal(t, "1 / 1", nav.Status())
}

func TestPhraseMarkedAsOneSpan(t *testing.T) {
	doc := parse(t, `<p data-key="k1">The Quick   Brown fox</p>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"k1"}), index.Words("quick bro"))

	require.Equal(t, 1, nav.Len())
	assert.Equal(t, []string{"Quick   Brown"}, marks(doc.Main()))
}

func TestPartialPhraseHitsAreNotSupplemented(t *testing.T) {
	doc := parse(t, `<p data-key="a">quick fox</p><p data-key="b">fox then quick</p>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"a", "b"}), index.Words("quick fox"))

	require.Equal(t, 2, nav.Len())
	assert.Equal(t, []string{"quick fox"}, marks(doc.Element("a")))
	assert.Empty(t, marks(doc.Element("b")))
	assert.True(t, nav.Matches()[1].IndexOnly)
}

func TestSingleWordSkipsPhraseStep(t *testing.T) {
	doc := parse(t, `<p data-key="k">unquickly</p>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"k"}), index.Words("quick"))

	require.Equal(t, 1, nav.Len())
	assert.Equal(t, []string{"quick"}, marks(doc.Main()))
}

func TestMatchesFollowDocumentOrder(t *testing.T) {
	doc := parse(t, `
<section><h1>One</h1><p data-key="first">alpha</p></section>
<section><h1>Two</h1><div><p data-key="second">beta</p></div><p data-key="third">gamma</p></section>`)

	// Keys arrive in index order, which is not document order.
	elements := doc.Locate([]string{"third", "first", "second"})
	nav := New(doc, nil).Highlight(elements, index.Words("alpha"))

	assert.Equal(t, []string{"first", "second", "third"}, nav.Keys())
	for i := 1; i < nav.Len(); i++ {
		assert.Less(t, nav.Matches()[i-1].Rank, nav.Matches()[i].Rank)
	}
}

func TestNavigateIsCyclic(t *testing.T) {
	doc := parse(t, `<p data-key="a">word</p><p data-key="b">word</p><p data-key="c">word</p>`)
	var revealed []string
	h := New(doc, func(m Match) { revealed = append(revealed, m.Key) })
	nav := h.Highlight(doc.Locate([]string{"a", "b", "c"}), index.Words("word"))

	require.Equal(t, 3, nav.Len())
	assert.Equal(t, 0, nav.Current())
	assert.Equal(t, []string{"a"}, revealed)

	for start := range nav.Len() {
		nav.Seek(start)
		for range nav.Len() {
			nav.Navigate(+1)
			require.Len(t, currentElements(doc), 1)
		}
		assert.Equal(t, start, nav.Current())

		nav.Navigate(+1)
		nav.Navigate(-1)
		assert.Equal(t, start, nav.Current())
	}

	nav.Seek(0)
	nav.Navigate(-1)
	assert.Equal(t, 2, nav.Current())
	assert.Equal(t, "3 / 3", nav.Status())
	cur, ok := nav.CurrentMatch()
	require.True(t, ok)
	assert.Equal(t, "c", cur.Key)
	assert.Equal(t, []*html.Node{cur.Element}, currentElements(doc))
	assert.Equal(t, "c", revealed[len(revealed)-1])
}

func TestNavigateWithoutMatchesIsNoop(t *testing.T) {
	doc := parse(t, `<p data-key="a">text</p>`)
	h := New(doc, nil)
	nav := h.Highlight(nil, index.Words("text"))

	nav.Navigate(1)
	nav.Navigate(-1)
	nav.Seek(3)
	assert.Equal(t, -1, nav.Current())
	assert.Equal(t, "0 / 0", nav.Status())
	_, ok := nav.CurrentMatch()
	assert.False(t, ok)
}

func TestResetRestoresDocument(t *testing.T) {
	doc := parse(t, `
<details><summary>More</summary><p data-key="a">The quick brown fox</p></details>
<p data-key="b">Le renard</p>
<p data-key="c" class="note">quick <b>quick</b> quick</p>`)
	before := doc.String()

	h := New(doc, nil)
	nav := h.Highlight(doc.Locate([]string{"a", "b", "c"}), index.Words("quick"))
	require.Equal(t, 3, nav.Len())
	details := content.FindFirst(doc.Main(), func(n *html.Node) bool { return n.Data == "details" })
	_, open := content.Attr(details, "open")
	assert.True(t, open, "details around a match should be opened")
	assert.NotEqual(t, before, doc.String())

	h.Reset()

	assert.Equal(t, before, doc.String())
	assert.Empty(t, marks(doc.Root))
	assert.Empty(t, currentElements(doc))
	assert.Empty(t, content.FindAll(doc.Root, func(n *html.Node) bool { return content.HasClass(n, IndexOnlyClass) }))
	assert.Equal(t, 0, h.Navigator().Len())
	assert.Equal(t, -1, h.Navigator().Current())
	assert.Equal(t, "0 / 0", h.Navigator().Status())
}

func TestResetClosesDetailsOpenedBefore(t *testing.T) {
	doc := parse(t, `<details open><summary>s</summary><p>x</p></details>`)
	New(doc, nil).Reset()
	assert.False(t, strings.Contains(doc.String(), "open"))
}

func TestScriptAndStyleAreNeverMarked(t *testing.T) {
	doc := parse(t, `<div data-key="k">fox<script>var fox = 1</script><style>.fox{}</style></div>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"k"}), index.Words("fox"))

	require.Equal(t, 1, nav.Len())
	assert.Equal(t, []string{"fox"}, marks(doc.Main()))
}

func TestNonRenderedTextIsNeverMarked(t *testing.T) {
	doc := parse(t, `<div data-key="k"><textarea>hello there</textarea><noscript>hello</noscript><template><p>hello</p></template><span>hello</span></div>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"k"}), index.Words("hello"))

	require.Equal(t, 1, nav.Len())
	assert.Equal(t, []string{"hello"}, marks(doc.Main()))
	assert.Contains(t, doc.String(), "<textarea>hello there</textarea>")
}

func TestNonLatinPhraseFallsBackToWords(t *testing.T) {
	doc := parse(t, `<p data-key="k">Быстрый поиск работает</p>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"k"}), index.Words("быстрый поиск"))

	require.Equal(t, 1, nav.Len())
	assert.Equal(t, 2, nav.Matches()[0].Spans)
	assert.Equal(t, []string{"Быстрый", "поиск"}, marks(doc.Main()))
}

func TestQueryMetacharactersAreLiteral(t *testing.T) {
	doc := parse(t, `<p data-key="k">costs $5 (approx.) or more</p>`)
	nav := New(doc, nil).Highlight(doc.Locate([]string{"k"}), index.Words("(approx.)"))

	require.Equal(t, 1, nav.Len())
	assert.Equal(t, []string{"(approx.)"}, marks(doc.Main()))
}
