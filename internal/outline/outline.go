// Package outline builds the table of contents of a document and keeps it
// in sync with the current search matches.
package outline

import (
	"html/template"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/canonical/docs-viewer/internal/content"
)

const navPrefix = "nav_"

// Entry is a second-level heading.
type Entry struct {
	ID    string `json:"id"`
	Key   string `json:"key,omitempty"`
	Title string `json:"title"`
}

// Node is a top-level section of the outline.
type Node struct {
	ID       string     `json:"id"`
	Key      string     `json:"key,omitempty"`
	Title    string     `json:"title"`
	Heading  *html.Node `json:"-"`
	Children []Entry    `json:"children,omitempty"`
	Visible  bool       `json:"visible"`
	Expanded bool       `json:"expanded"`
}

// NodeState is the visibility of one top-level node.
type NodeState struct {
	ID       string `json:"id"`
	Visible  bool   `json:"visible"`
	Expanded bool   `json:"expanded"`
}

// Outline is the table of contents of one document.
type Outline struct {
	Nodes []*Node
}

// Build collects h1[id] headings under the content root as top-level nodes
// and attaches each h2[id] to the closest preceding one. Titles come from
// the nav_ variant of the heading's key when lookup knows it, and from the
// heading text otherwise.
func Build(doc *content.Document, lookup content.Lookup) *Outline {
	o := &Outline{}
	var current *Node
	headings := content.FindAll(doc.Main(), func(n *html.Node) bool {
		if n.DataAtom != atom.H1 && n.DataAtom != atom.H2 {
			return false
		}
		id, ok := content.Attr(n, "id")
		return ok && id != ""
	})
	for _, h := range headings {
		id, _ := content.Attr(h, "id")
		key := headingKey(h)
		title := label(h, key, lookup)
		if h.DataAtom == atom.H1 {
			current = &Node{ID: id, Key: key, Title: title, Heading: h}
			o.Nodes = append(o.Nodes, current)
			continue
		}
		if current != nil {
			current.Children = append(current.Children, Entry{ID: id, Key: key, Title: title})
		}
	}
	o.Reset()
	return o
}

// headingKey returns the key of the heading itself or of its first keyed
// descendant.
func headingKey(h *html.Node) string {
	if k, ok := content.Attr(h, content.KeyAttr); ok {
		return k
	}
	inner := content.FindFirst(h, func(n *html.Node) bool {
		_, ok := content.Attr(n, content.KeyAttr)
		return ok
	})
	if inner == nil {
		return ""
	}
	k, _ := content.Attr(inner, content.KeyAttr)
	return k
}

// NavKey rewrites a heading key to the key of its outline label.
func NavKey(key string) string {
	for _, prefix := range []string{"h1_", "h2_"} {
		if strings.HasPrefix(key, prefix) {
			return navPrefix + strings.TrimPrefix(key, prefix)
		}
	}
	return key
}

func label(h *html.Node, key string, lookup content.Lookup) string {
	if key != "" && lookup != nil {
		if v, ok := lookup(NavKey(key)); ok && v != "" {
			return content.PlainText(v)
		}
	}
	return strings.Join(strings.Fields(content.TextContent(h)), " ")
}

// Reset shows every node and expands only the first.
func (o *Outline) Reset() {
	for i, n := range o.Nodes {
		n.Visible = true
		n.Expanded = i == 0
	}
}

// Filter shows and expands the sections that own a matched element and
// hides the others. ranks must be the document ranks the matched elements
// were ordered with. An inactive query resets the outline instead.
func (o *Outline) Filter(matched []*html.Node, ranks map[*html.Node]int, queryActive bool) {
	if !queryActive {
		o.Reset()
		return
	}
	for _, n := range o.Nodes {
		n.Visible = false
	}
	if len(matched) == 0 || len(o.Nodes) == 0 {
		return
	}

	headingRanks := make([]int, len(o.Nodes))
	for i, n := range o.Nodes {
		headingRanks[i] = ranks[n.Heading]
	}
	for _, el := range matched {
		if owner := o.owner(headingRanks, ranks[el]); owner != nil {
			owner.Visible = true
			owner.Expanded = true
		}
	}
}

// owner returns the last top-level node whose heading does not come after
// rank.
func (o *Outline) owner(headingRanks []int, rank int) *Node {
	i := sort.Search(len(headingRanks), func(i int) bool { return headingRanks[i] > rank })
	if i == 0 {
		return nil
	}
	return o.Nodes[i-1]
}

func (o *Outline) States() []NodeState {
	out := make([]NodeState, len(o.Nodes))
	for i, n := range o.Nodes {
		out[i] = NodeState{ID: n.ID, Visible: n.Visible, Expanded: n.Expanded}
	}
	return out
}

// Visible returns the ids of the visible top-level nodes.
func (o *Outline) Visible() []string {
	var ids []string
	for _, n := range o.Nodes {
		if n.Visible {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

var listTemplate = template.Must(template.New("outline").Funcs(template.FuncMap{"navKey": NavKey}).Parse(`<ul class="toc-list">
{{- range .Nodes}}
<li class="toc-h1{{if not .Expanded}} is-collapsed{{end}}" data-id="{{.ID}}"{{if not .Visible}} hidden{{end}}>
<div class="toc-h1-header"><button class="toc-toggle{{if not .Children}} is-placeholder{{end}}" aria-label="Toggle submenu"{{if not .Children}} disabled{{end}}></button><a href="#{{.ID}}"{{with .Key}} data-key="{{navKey .}}"{{end}}>{{.Title}}</a></div>
<ul class="toc-submenu">
{{- range .Children}}
<li class="toc-h2"><a href="#{{.ID}}"{{with .Key}} data-key="{{navKey .}}"{{end}}>{{.Title}}</a></li>
{{- end}}
</ul>
</li>
{{- end}}
</ul>
`))

// Render writes the outline as a nested list.
func (o *Outline) Render(w io.Writer) error {
	return listTemplate.Execute(w, o)
}
