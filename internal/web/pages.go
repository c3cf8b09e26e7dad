package web

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/finder"
	"github.com/canonical/docs-viewer/internal/outline"
	"github.com/canonical/docs-viewer/internal/patchnotes"
	"github.com/canonical/docs-viewer/internal/pipeline"
)

// translatedPage is the skeleton with one language applied. doc is shared
// between requests and must be cloned before a search pass touches it.
type translatedPage struct {
	doc     *content.Document
	title   string
	content template.HTML
	outline template.HTML
}

type languageLink struct {
	Code   string
	Name   string
	Flag   string
	Href   string
	Active bool
}

type pageView struct {
	Title        string
	Lang         string
	Languages    []languageLink
	Content      template.HTML
	Outline      template.HTML
	Query        string
	Status       string
	PatchNotes   []patchnotes.Note
	IndexState   string
	SiteURL      string
	CanonicalURL string
	Debounce     int64
}

// translated returns the page for code, rendering and caching it on first
// use. Pages built while the language is unavailable fall back to the
// default language and are not cached.
func (s *Server) translated(ctx context.Context, code string) (*translatedPage, error) {
	if p, ok := s.pages.Get(code); ok {
		return p, nil
	}

	_, loadErr := s.store.Load(ctx, code)
	if loadErr != nil {
		s.logger.Warn("rendering with fallback translations", "language", code, "error", loadErr)
	}

	doc, toc := pipeline.Translated(s.document, code, s.store.Lookuper(code))
	p := &translatedPage{doc: doc, title: documentTitle(doc)}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Main()); err != nil {
		return nil, err
	}
	p.content = template.HTML(buf.String())
	buf.Reset()
	if err := toc.Render(&buf); err != nil {
		return nil, err
	}
	p.outline = template.HTML(buf.String())

	if loadErr == nil {
		s.pages.Add(code, p)
	}
	return p, nil
}

func documentTitle(doc *content.Document) string {
	n := content.FindFirst(doc.Root, func(n *html.Node) bool { return n.DataAtom == atom.Title })
	if n == nil {
		return ""
	}
	return strings.TrimSpace(content.TextContent(n))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	code, ok := pipeline.LanguageFromURL(r.URL.Path)
	if !ok {
		s.renderNotFound(w, r)
		return
	}
	if code == "" {
		code = s.preferredLanguage(r)
	} else if _, known := s.store.Language(code); !known {
		s.renderNotFound(w, r)
		return
	}

	page, err := s.translated(r.Context(), code)
	if err != nil {
		s.logger.Error("render error", "language", code, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	siteURL := s.cfg.SiteURL()
	view := pageView{
		Title:        page.title,
		Lang:         code,
		Languages:    s.languageLinks(code),
		Content:      page.content,
		Outline:      page.outline,
		PatchNotes:   s.notes,
		IndexState:   s.index.State().String(),
		SiteURL:      siteURL,
		CanonicalURL: siteURL + pipeline.PageURL(code),
		Debounce:     s.cfg.Debounce().Milliseconds(),
	}
	if view.Title == "" {
		view.Title = s.cfg.Site
	}

	// A query in the URL renders the page with the search already applied.
	if q := r.URL.Query().Get("q"); q != "" {
		f, toc := s.newFinder(page, code, finder.Options{Logger: s.logger})
		defer f.Close()
		res := f.Search(q)

		var buf bytes.Buffer
		if err := f.RenderContent(&buf); err == nil {
			view.Content = template.HTML(buf.String())
		}
		buf.Reset()
		if err := toc.Render(&buf); err == nil {
			view.Outline = template.HTML(buf.String())
		}
		view.Query = q
		view.Status = res.Status
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "page", "error", err)
	}
}

// preferredLanguage picks the language of the site root from the lang
// query parameter, then the lang cookie.
func (s *Server) preferredLanguage(r *http.Request) string {
	if v := r.URL.Query().Get("lang"); v != "" {
		return s.store.Resolve(v)
	}
	if c, err := r.Cookie("lang"); err == nil {
		return s.store.Resolve(c.Value)
	}
	return s.store.DefaultLanguage()
}

// newFinder runs searches over a private copy of page.
func (s *Server) newFinder(page *translatedPage, code string, opts finder.Options) (*finder.Finder, *outline.Outline) {
	doc := page.doc.Clone()
	toc := outline.Build(doc, s.store.Lookuper(code))
	return finder.New(doc, toc, s.index, opts), toc
}

func (s *Server) languageLinks(active string) []languageLink {
	langs := s.store.Languages()
	links := make([]languageLink, 0, len(langs))
	for _, l := range langs {
		links = append(links, languageLink{
			Code:   l.Code,
			Name:   l.Name,
			Flag:   l.Flag,
			Href:   pipeline.PageURL(l.Code),
			Active: l.Code == active,
		})
	}
	return links
}

func (s *Server) renderNotFound(w http.ResponseWriter, _ *http.Request) {
	view := pageView{
		Title:     "Not found",
		Lang:      s.store.DefaultLanguage(),
		Languages: s.languageLinks(""),
		SiteURL:   s.cfg.SiteURL(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := s.notFound.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "404", "error", err)
	}
}
