package pipeline

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/canonical/docs-viewer/internal/content"
)

// openMaybeGzipped opens a file and wraps it in a gzip reader when the
// path ends with ".gz". The returned cleanup function must always be
// called.
func openMaybeGzipped(path string) (io.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open document: %w", err)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return file, file.Close, nil
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("read gzip: %w", err)
	}
	cleanup := func() error {
		_ = gz.Close()
		return file.Close()
	}
	return gz, cleanup, nil
}

// LoadDocument parses the document skeleton at path and assigns ids to
// its headings so every language shares the same anchors.
func LoadDocument(path string) (*content.Document, error) {
	r, cleanup, err := openMaybeGzipped(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cleanup() }()

	doc, err := content.Parse(r)
	if err != nil {
		return nil, err
	}
	content.AssignHeadingIDs(doc)
	return doc, nil
}
