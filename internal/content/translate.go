package content

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Lookup resolves a translation key to raw text.
type Lookup func(key string) (string, bool)

// policy is safe for concurrent use once built.
var policy = bluemonday.UGCPolicy()

// Sanitize strips unsafe markup from translated text.
func Sanitize(raw string) string {
	return policy.Sanitize(raw)
}

// Translate fills every data-key element of doc from lookup. Code elements
// receive the text verbatim, inputs with a placeholder get the placeholder
// replaced, elements with a title get the title replaced; everything else
// gets the sanitised markup. Keys lookup cannot resolve are left as they
// are.
func Translate(doc *Document, lookup Lookup) int {
	translated := 0
	for _, n := range FindAll(doc.Root, hasKey) {
		key, _ := Attr(n, KeyAttr)
		text, ok := lookup(key)
		if !ok {
			continue
		}
		applyTranslation(n, text)
		translated++
	}
	return translated
}

func hasKey(n *html.Node) bool {
	_, ok := Attr(n, KeyAttr)
	return ok
}

func applyTranslation(n *html.Node, text string) {
	if n.DataAtom == atom.Code {
		SetText(n, text)
		return
	}
	if n.DataAtom == atom.Input {
		if _, ok := Attr(n, "placeholder"); ok {
			SetAttr(n, "placeholder", text)
		}
		return
	}
	if _, ok := Attr(n, "title"); ok {
		SetAttr(n, "title", text)
		return
	}

	nodes, err := html.ParseFragment(strings.NewReader(Sanitize(text)), fragmentContext(n))
	if err != nil {
		SetText(n, PlainText(text))
		return
	}
	ReplaceChildren(n, nodes...)
}

// fragmentContext returns a detached element of the same kind as n, so
// fragments are parsed the way they would be inside n.
func fragmentContext(n *html.Node) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: n.DataAtom, Data: n.Data, Namespace: n.Namespace}
}
