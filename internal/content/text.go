package content

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// skippedText lists elements whose content is never shown as document
// text.
var skippedText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
	atom.Textarea: true,
	atom.Title:    true,
}

// SkipsText reports whether the text inside elements of type a stays out of
// plain text and search marks.
func SkipsText(a atom.Atom) bool {
	return skippedText[a]
}

// PlainText projects raw, possibly HTML-bearing, text to the text a reader
// would see. Markup is tokenized, never interpreted.
func PlainText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return raw
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF, or malformed input: keep what was read.
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedText[atom.Lookup(name)] {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedText[atom.Lookup(name)] && skip > 0 {
				skip--
			}
		}
	}
}

func slugify(text string) string {
	slug := strings.ToLower(text)
	slug = nonAlphanumeric.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// AssignHeadingIDs gives every h1 and h2 under Main without an id a slug of
// its text. Slugs already used in the document get a numeric suffix.
func AssignHeadingIDs(doc *Document) {
	seen := map[string]bool{}
	Walk(doc.Root, func(n *html.Node) bool {
		if id, ok := Attr(n, "id"); ok && id != "" {
			seen[id] = true
		}
		return true
	})

	headings := FindAll(doc.Main(), func(n *html.Node) bool {
		return n.DataAtom == atom.H1 || n.DataAtom == atom.H2
	})
	for i, h := range headings {
		if id, ok := Attr(h, "id"); ok && id != "" {
			continue
		}
		slug := slugify(strings.TrimSpace(TextContent(h)))
		if slug == "" {
			slug = fmt.Sprintf("heading-%d", i)
		}
		if seen[slug] {
			slug = fmt.Sprintf("%s-%d", slug, i)
		}
		seen[slug] = true
		SetAttr(h, "id", slug)
	}
}
