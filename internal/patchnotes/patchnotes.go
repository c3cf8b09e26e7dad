// Package patchnotes loads the release notes shown alongside the document.
package patchnotes

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"slices"
	"strings"

	debversion "pault.ag/go/debian/version"

	"github.com/canonical/docs-viewer/internal/content"
)

// Note is one release entry. Content is sanitised HTML.
type Note struct {
	Version string        `json:"version"`
	Title   string        `json:"title"`
	Content template.HTML `json:"content"`
}

type file struct {
	PatchNotes []rawNote `json:"patch_notes"`
}

type rawNote struct {
	Version string `json:"version"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Load reads a patch notes file; a .gz suffix means gzip-compressed.
func Load(path string) ([]Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patch notes: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return Parse(r)
}

// Parse decodes {"patch_notes": [...]} and returns the notes newest first.
// Titles lose all markup; content keeps the markup that is safe to render.
func Parse(r io.Reader) ([]Note, error) {
	var f file
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode patch notes: %w", err)
	}

	notes := make([]Note, 0, len(f.PatchNotes))
	for _, n := range f.PatchNotes {
		notes = append(notes, Note{
			Version: strings.TrimSpace(n.Version),
			Title:   strings.TrimSpace(content.PlainText(n.Title)),
			Content: template.HTML(content.Sanitize(n.Content)),
		})
	}
	slices.SortStableFunc(notes, func(a, b Note) int { return -compareVersions(a.Version, b.Version) })
	return notes, nil
}

// compareVersions orders Debian-style version strings. Unparsable versions
// sort below every valid one and keep their relative order.
func compareVersions(left, right string) int {
	l, lerr := debversion.Parse(left)
	r, rerr := debversion.Parse(right)
	switch {
	case lerr != nil && rerr != nil:
		return 0
	case lerr != nil:
		return -1
	case rerr != nil:
		return 1
	}
	return debversion.Compare(l, r)
}
