package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/canonical/docs-viewer/internal/logging"
)

const (
	maxSitemapURLs = 50000
	sitemapXMLNS   = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xhtmlXMLNS     = "http://www.w3.org/1999/xhtml"
)

type sitemapURL struct {
	XMLName    xml.Name        `xml:"url"`
	Loc        string          `xml:"loc"`
	LastMod    string          `xml:"lastmod,omitempty"`
	Alternates []alternateLink `xml:"xhtml:link,omitempty"`
}

// alternateLink points search engines at the same page in another language.
type alternateLink struct {
	Rel      string `xml:"rel,attr"`
	HrefLang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	XHTML   string       `xml:"xmlns:xhtml,attr,omitempty"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	XMLNS    string            `xml:"xmlns,attr"`
	Sitemaps []sitemapIndexRef `xml:"sitemap"`
}

type sitemapIndexRef struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

// Generator writes sitemaps for the published language trees.
type Generator struct {
	Root    string // PublicHTMLDir
	SiteURL string // e.g. "https://docs.example.com"
	Logger  *slog.Logger
}

// Generate writes one sitemap per language plus a static sitemap and a
// sitemap index to {Root}/sitemaps/. Languages with no published tree are
// skipped.
func (g *Generator) Generate(ctx context.Context, languages []string) error {
	logger := logging.OrDiscard(g.Logger)
	sitemapDir := filepath.Join(g.Root, "sitemaps")
	if err := os.MkdirAll(sitemapDir, 0o755); err != nil {
		return fmt.Errorf("create sitemaps dir: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02")
	var indexRefs []sitemapIndexRef

	staticURLs := []sitemapURL{{Loc: g.SiteURL + "/", LastMod: now, Alternates: g.alternates("/", languages)}}
	staticFile := "sitemap-static.xml"
	if err := g.writeSitemap(filepath.Join(sitemapDir, staticFile), staticURLs); err != nil {
		return fmt.Errorf("write static sitemap: %w", err)
	}
	indexRefs = append(indexRefs, sitemapIndexRef{
		Loc:     g.SiteURL + "/sitemaps/" + staticFile,
		LastMod: now,
	})

	for _, lang := range languages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		refs, err := g.generateLanguage(ctx, sitemapDir, lang, languages)
		if err != nil {
			logger.Warn("sitemap language error", "language", lang, "error", err)
			continue
		}
		indexRefs = append(indexRefs, refs...)
	}

	idx := sitemapIndex{
		XMLNS:    sitemapXMLNS,
		Sitemaps: indexRefs,
	}
	return writeXML(filepath.Join(sitemapDir, "sitemap-index.xml"), idx)
}

// generateLanguage lists every .html page under {Root}/{lang}.
func (g *Generator) generateLanguage(ctx context.Context, sitemapDir, lang string, languages []string) ([]sitemapIndexRef, error) {
	langDir := filepath.Join(g.Root, lang)
	var urls []sitemapURL
	err := filepath.WalkDir(langDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		rel, err := filepath.Rel(langDir, path)
		if err != nil {
			return err
		}
		page := "/" + filepath.ToSlash(rel)
		page = strings.TrimSuffix(page, "index.html")

		var lastmod string
		if info, err := d.Info(); err == nil {
			lastmod = info.ModTime().UTC().Format("2006-01-02")
		}
		urls = append(urls, sitemapURL{
			Loc:        g.SiteURL + "/" + lang + page,
			LastMod:    lastmod,
			Alternates: g.alternates(page, languages),
		})
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, nil
	}

	var refs []sitemapIndexRef
	now := time.Now().UTC().Format("2006-01-02")
	chunks := splitURLs(urls, maxSitemapURLs)
	for i, chunk := range chunks {
		filename := "sitemap-" + lang
		if len(chunks) > 1 {
			filename = fmt.Sprintf("%s-%d", filename, i+1)
		}
		filename += ".xml"

		if err := g.writeSitemap(filepath.Join(sitemapDir, filename), chunk); err != nil {
			return nil, err
		}
		refs = append(refs, sitemapIndexRef{
			Loc:     g.SiteURL + "/sitemaps/" + filename,
			LastMod: now,
		})
	}
	return refs, nil
}

func (g *Generator) alternates(page string, languages []string) []alternateLink {
	links := make([]alternateLink, 0, len(languages))
	for _, l := range languages {
		links = append(links, alternateLink{Rel: "alternate", HrefLang: l, Href: g.SiteURL + "/" + l + page})
	}
	return links
}

func (g *Generator) writeSitemap(path string, urls []sitemapURL) error {
	urlset := sitemapURLSet{
		XMLNS: sitemapXMLNS,
		XHTML: xhtmlXMLNS,
		URLs:  urls,
	}
	return writeXML(path, urlset)
}

func writeXML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func splitURLs(urls []sitemapURL, maxPerFile int) [][]sitemapURL {
	if len(urls) <= maxPerFile {
		return [][]sitemapURL{urls}
	}
	var chunks [][]sitemapURL
	for i := 0; i < len(urls); i += maxPerFile {
		end := min(i+maxPerFile, len(urls))
		chunks = append(chunks, urls[i:end])
	}
	return chunks
}
