package web

import (
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/logging"
	"github.com/canonical/docs-viewer/internal/patchnotes"
)

//go:embed templates/base.html templates/page.html templates/404.html static/viewer.css static/viewer.js
var webAssets embed.FS

const defaultPageCacheSize = 32

// Deps are the components the server reads from. Document is the
// untranslated skeleton and is never modified.
type Deps struct {
	Store      *i18n.Store
	Index      *index.Index
	Document   *content.Document
	PatchNotes []patchnotes.Note
}

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	page     *template.Template
	notFound *template.Template
	store    *i18n.Store
	index    *index.Index
	document *content.Document
	notes    []patchnotes.Note
	pages    *lru.Cache[string, *translatedPage]
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	page := template.Must(template.ParseFS(webAssets, "templates/base.html", "templates/page.html"))
	notFound := template.Must(template.ParseFS(webAssets, "templates/base.html", "templates/404.html"))
	pages, _ := lru.New[string, *translatedPage](defaultPageCacheSize)
	return &Server{
		cfg:      cfg,
		logger:   logging.OrDiscard(logger),
		page:     page,
		notFound: notFound,
		store:    deps.Store,
		index:    deps.Index,
		document: deps.Document,
		notes:    deps.PatchNotes,
		pages:    pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the full route table wrapped in the logging and gzip
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/robots.txt", s.handleRobotsTxt)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/languages", s.handleLanguages)
	mux.HandleFunc("/api/patch-notes", s.handlePatchNotes)
	mux.HandleFunc("/ws/search", s.handleLiveSearch)
	mux.HandleFunc("/", s.handlePage)
	staticFS, _ := fs.Sub(webAssets, "static")
	staticETag := computeStaticETag()
	mux.Handle("/static/", staticCacheHandler(staticETag,
		http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
	))
	if s.cfg.PublicHTMLDir != "" {
		sitemapDir := filepath.Join(s.cfg.PublicHTMLDir, "sitemaps")
		mux.Handle("/sitemaps/", http.StripPrefix("/sitemaps/", http.FileServer(http.Dir(sitemapDir))))
	}
	return s.logRequests(gzipHandler(mux))
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Invalidate drops every cached translated page. Call it after the
// translations have been reloaded.
func (s *Server) Invalidate() {
	s.pages.Purge()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"index":  s.index.State().String(),
		"keys":   s.index.Len(),
	})
}

func (s *Server) handleRobotsTxt(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, `User-agent: *
Allow: /
Disallow: /api/
Disallow: /ws/
Disallow: /healthz

Sitemap: %s/sitemaps/sitemap-index.xml
`, s.cfg.SiteURL())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher, delegating to the underlying writer.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades through the logging middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.written = true
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", filepath.Clean(r.URL.Path),
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

func computeStaticETag() string {
	h := sha256.New()
	entries, _ := webAssets.ReadDir("static")
	for _, entry := range entries {
		data, _ := webAssets.ReadFile("static/" + entry.Name())
		h.Write([]byte(entry.Name()))
		h.Write(data)
	}
	return `"` + hex.EncodeToString(h.Sum(nil))[:16] + `"`
}

func staticCacheHandler(etag string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("ETag", etag)

		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// gzipResponseWriter conditionally compresses responses for compressible content types.
type gzipResponseWriter struct {
	http.ResponseWriter
	gw      *gzip.Writer
	sniffed bool
}

func (grw *gzipResponseWriter) WriteHeader(code int) {
	if code != http.StatusNotModified {
		grw.sniff()
	}
	grw.ResponseWriter.WriteHeader(code)
}

func (grw *gzipResponseWriter) Write(b []byte) (int, error) {
	grw.sniff()
	if grw.gw != nil {
		return grw.gw.Write(b)
	}
	return grw.ResponseWriter.Write(b)
}

func (grw *gzipResponseWriter) sniff() {
	if grw.sniffed {
		return
	}
	grw.sniffed = true

	ct := grw.ResponseWriter.Header().Get("Content-Type")
	if strings.HasPrefix(ct, "text/") ||
		strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/javascript") {
		grw.ResponseWriter.Header().Set("Content-Encoding", "gzip")
		grw.ResponseWriter.Header().Del("Content-Length")
	} else {
		grw.gw = nil
	}
}

func (grw *gzipResponseWriter) Flush() {
	if grw.gw != nil {
		_ = grw.gw.Flush()
	}
	if f, ok := grw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func gzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		gw := gzip.NewWriter(w)
		grw := &gzipResponseWriter{ResponseWriter: w, gw: gw}
		next.ServeHTTP(grw, r)
		if grw.gw != nil {
			_ = grw.gw.Close()
		}
	})
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// parseDirQuery reads a navigation direction: positive, negative or none.
func parseDirQuery(r *http.Request) int {
	parsed, err := strconv.Atoi(r.URL.Query().Get("dir"))
	switch {
	case err != nil || parsed == 0:
		return 0
	case parsed > 0:
		return 1
	default:
		return -1
	}
}
