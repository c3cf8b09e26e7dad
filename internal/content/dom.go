package content

import (
	"strings"

	"golang.org/x/net/html"
)

// Walk visits n and its descendants in preorder. Returning false from fn
// skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// FindFirst returns the first element in preorder under n (n included) for
// which match is true.
func FindFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// FindAll returns every element under n (n included) for which match is
// true, in document order.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && match(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

func Attr(n *html.Node, name string) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func RemoveAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func HasClass(n *html.Node, class string) bool {
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	v, _ := Attr(n, "class")
	if v = strings.TrimSpace(v); v != "" {
		v += " "
	}
	SetAttr(n, "class", v+class)
}

// RemoveClass drops class from n, and the class attribute itself once it is
// empty.
func RemoveClass(n *html.Node, class string) {
	v, ok := Attr(n, "class")
	if !ok {
		return
	}
	fields := strings.Fields(v)
	kept := fields[:0]
	for _, c := range fields {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// TextContent concatenates the text nodes under n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// ReplaceChildren removes every child of n and appends nodes instead.
func ReplaceChildren(n *html.Node, nodes ...*html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

// SetText replaces the children of n with a single text node.
func SetText(n *html.Node, text string) {
	ReplaceChildren(n, &html.Node{Type: html.TextNode, Data: text})
}

// Closest returns the nearest ancestor of n (n excluded) for which match is
// true, stopping at stop.
func Closest(n, stop *html.Node, match func(*html.Node) bool) *html.Node {
	for p := n.Parent; p != nil && p != stop; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}
