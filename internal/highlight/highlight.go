// Package highlight marks query matches inside located content elements and
// keeps the document-ordered list of matches for navigation.
package highlight

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/canonical/docs-viewer/internal/content"
)

const (
	// MarkClass is set on every inline <mark> span.
	MarkClass = "search-mark"
	// IndexOnlyClass tags elements that matched through the index but show
	// no literal occurrence of the query.
	IndexOnlyClass = "cross-language-match"
	// CurrentClass tags the element of the current match.
	CurrentClass = "current-match"
)

// Match is one matched element of a search pass.
type Match struct {
	Element   *html.Node
	Key       string
	Rank      int
	IndexOnly bool
	Spans     int
}

// Highlighter annotates one document. It is not safe for concurrent use.
type Highlighter struct {
	doc *content.Document
	nav *Navigator
}

// New returns a highlighter for doc. reveal, when not nil, is called with
// each match that becomes current.
func New(doc *content.Document, reveal func(Match)) *Highlighter {
	return &Highlighter{doc: doc, nav: &Navigator{current: -1, reveal: reveal}}
}

func (h *Highlighter) Navigator() *Navigator {
	return h.nav
}

// Highlight marks words inside elements and returns the navigator over the
// resulting matches. It first marks the whole phrase; only when that finds
// nothing are the words marked one by one. Elements with no mark at all are
// still matches, tagged index-only. Reset must have been called since the
// previous pass.
func (h *Highlighter) Highlight(elements []*html.Node, words []string) *Navigator {
	if len(elements) == 0 || len(words) == 0 {
		h.nav.set(nil)
		return h.nav
	}

	marked := 0
	if len(words) > 1 {
		marked = markAll(elements, phrasePattern(words))
	}
	if marked == 0 {
		markAll(elements, wordsPattern(words))
	}

	ranks := h.doc.Ranks()
	matches := make([]Match, 0, len(elements))
	for _, el := range elements {
		key, _ := content.Attr(el, content.KeyAttr)
		m := Match{Element: el, Key: key, Rank: ranks[el], Spans: countMarks(el)}
		if m.Spans == 0 {
			m.IndexOnly = true
			content.AddClass(el, IndexOnlyClass)
		}
		matches = append(matches, m)
	}
	slices.SortStableFunc(matches, func(a, b Match) int { return a.Rank - b.Rank })

	root := h.doc.Main()
	for _, m := range matches {
		openDetails(m.Element, root)
	}

	h.nav.set(matches)
	return h.nav
}

// Reset removes every mark and match tag under the content root, closes
// its <details> sections and empties the navigator.
func (h *Highlighter) Reset() {
	root := h.doc.Main()

	for _, mark := range content.FindAll(root, isMark) {
		unwrap(mark)
	}
	content.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			content.RemoveClass(n, IndexOnlyClass)
			content.RemoveClass(n, CurrentClass)
			if n.DataAtom == atom.Details {
				content.RemoveAttr(n, "open")
			}
		}
		return true
	})
	h.nav.set(nil)
}

// phrasePattern matches the words in order, each possibly extended by
// trailing word characters, separated by whitespace. RE2 word classes are
// ASCII only, so outside Latin script the phrase pass finds nothing and
// per-word marks apply.
func phrasePattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(quoted, `\w*\s+\b`) + `\w*`)
}

// wordsPattern matches any single word anywhere, longest words first.
func wordsPattern(words []string) *regexp.Regexp {
	sorted := slices.Clone(words)
	slices.SortStableFunc(sorted, func(a, b string) int { return len(b) - len(a) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

func markAll(elements []*html.Node, re *regexp.Regexp) int {
	total := 0
	for _, el := range elements {
		for _, text := range markableText(el) {
			total += markText(text, re)
		}
	}
	return total
}

// markableText collects the text nodes under el that may receive marks.
func markableText(el *html.Node) []*html.Node {
	var nodes []*html.Node
	content.Walk(el, func(n *html.Node) bool {
		switch {
		case n.Type == html.ElementNode && (content.SkipsText(n.DataAtom) || isMark(n)):
			return false
		case n.Type == html.TextNode && n.Data != "":
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

// markText wraps every match of re in n with a mark element and returns the
// number of marks.
func markText(n *html.Node, re *regexp.Regexp) int {
	text := n.Data
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return 0
	}
	parent := n.Parent
	pos, marks := 0, 0
	for _, loc := range locs {
		if loc[0] == loc[1] {
			continue
		}
		marks++
		if loc[0] > pos {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[pos:loc[0]]}, n)
		}
		parent.InsertBefore(newMark(text[loc[0]:loc[1]]), n)
		pos = loc[1]
	}
	if pos < len(text) {
		n.Data = text[pos:]
	} else {
		parent.RemoveChild(n)
	}
	return marks
}

func newMark(text string) *html.Node {
	mark := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Mark,
		Data:     "mark",
		Attr:     []html.Attribute{{Key: "class", Val: MarkClass}},
	}
	mark.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return mark
}

func isMark(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Mark && content.HasClass(n, MarkClass)
}

func countMarks(el *html.Node) int {
	return len(content.FindAll(el, isMark))
}

// unwrap replaces mark with its children and merges the text nodes left
// side by side.
func unwrap(mark *html.Node) {
	parent := mark.Parent
	if parent == nil {
		return
	}
	for c := mark.FirstChild; c != nil; {
		next := c.NextSibling
		mark.RemoveChild(c)
		parent.InsertBefore(c, mark)
		c = next
	}
	parent.RemoveChild(mark)
	mergeText(parent)
}

func mergeText(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			parent.RemoveChild(next)
			continue
		}
		c = next
	}
}

// openDetails opens every <details> between el and root.
func openDetails(el, root *html.Node) {
	for p := el; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Details {
			content.SetAttr(p, "open", "")
		}
		if p == root {
			return
		}
	}
}
