// Package content wraps the rendered document tree. Every translatable unit
// in the tree carries a data-key attribute naming its translation key.
package content

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// KeyAttr names the attribute that links an element to its translation key.
	KeyAttr = "data-key"

	// MainClass marks the content root inside the page skeleton.
	MainClass = "content-wrapper"
)

// Document is a parsed HTML page.
type Document struct {
	Root *html.Node
}

func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{Root: root}, nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	if err := html.Render(w, d.Root); err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	return nil
}

func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

// Clone returns a deep copy that shares no nodes with d.
func (d *Document) Clone() *Document {
	return &Document{Root: CloneNode(d.Root)}
}

// CloneNode deep-copies n and its descendants. The copy has no parent or
// siblings.
func CloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(CloneNode(child))
	}
	return c
}

// Body returns the <body> element, or the root when there is none.
func (d *Document) Body() *html.Node {
	if body := FindFirst(d.Root, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		return body
	}
	return d.Root
}

// Main returns the content root: the first element with class
// content-wrapper, else <main>, else <body>.
func (d *Document) Main() *html.Node {
	if n := FindFirst(d.Root, func(n *html.Node) bool { return HasClass(n, MainClass) }); n != nil {
		return n
	}
	if n := FindFirst(d.Root, func(n *html.Node) bool { return n.DataAtom == atom.Main }); n != nil {
		return n
	}
	return d.Body()
}

// Element returns the element under Main carrying key, or nil.
func (d *Document) Element(key string) *html.Node {
	return FindFirst(d.Main(), func(n *html.Node) bool {
		v, ok := Attr(n, KeyAttr)
		return ok && v == key
	})
}

// Locate maps keys to the elements under Main that carry them. Keys without
// an element are dropped; duplicate keys yield one element. The result
// follows the order of keys, not document order.
func (d *Document) Locate(keys []string) []*html.Node {
	if len(keys) == 0 {
		return nil
	}
	byKey := d.keyed()
	seen := make(map[string]bool, len(keys))
	out := make([]*html.Node, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		if n, ok := byKey[k]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Keys returns every key rendered under Main, in document order.
func (d *Document) Keys() []string {
	var keys []string
	Walk(d.Main(), func(n *html.Node) bool {
		if v, ok := Attr(n, KeyAttr); ok && v != "" {
			keys = append(keys, v)
		}
		return true
	})
	return keys
}

// keyed indexes the first element per key under Main.
func (d *Document) keyed() map[string]*html.Node {
	byKey := make(map[string]*html.Node)
	Walk(d.Main(), func(n *html.Node) bool {
		if v, ok := Attr(n, KeyAttr); ok && v != "" {
			if _, dup := byKey[v]; !dup {
				byKey[v] = n
			}
		}
		return true
	})
	return byKey
}

// Ranks assigns every node of the document its preorder position. Comparing
// ranks orders nodes the way they appear in the rendered page.
func (d *Document) Ranks() map[*html.Node]int {
	ranks := make(map[*html.Node]int)
	i := 0
	Walk(d.Root, func(n *html.Node) bool {
		ranks[n] = i
		i++
		return true
	})
	return ranks
}
