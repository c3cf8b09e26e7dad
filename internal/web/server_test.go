package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/patchnotes"
)

const testDocument = `<!DOCTYPE html><html><head><title>Handbook</title></head><body>
<div class="content-wrapper">
<h1 id="greet" data-key="h1_greet">Greetings</h1>
<p data-key="greeting">Hello world</p>
<h1 id="animals" data-key="h1_animals">Animals</h1>
<p data-key="k1">The quick brown fox</p>
<p data-key="k2">A quick reply</p>
</div></body></html>`

func testServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	locales := t.TempDir()
	public := t.TempDir()
	locale := func(code, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(locales, code+".json"), []byte(body), 0o644))
	}
	locale("en", `{"h1_greet":"Greetings","greeting":"Hello world","h1_animals":"Animals","k1":"The quick brown fox","k2":"A quick reply"}`)
	locale("fr", `{"h1_greet":"Salutations","greeting":"Bonjour monde","h1_animals":"Animaux","k1":"Le renard brun rapide"}`)

	cfg := &config.Config{
		Site:            "https://docs.example.com",
		Document:        "document.html",
		LocalesDir:      locales,
		PublicHTMLDir:   public,
		DefaultLanguage: "en",
		Languages: []config.Language{
			{Code: "en", Name: "English"},
			{Code: "fr", Name: "Français"},
		},
		DebounceMS: 50,
	}

	store := i18n.NewStore(i18n.LanguagesFromConfig(cfg), cfg.DefaultLanguage, i18n.NewDirFetcher(locales), nil)
	ix := index.New(0, nil)
	require.NoError(t, ix.Prepare(context.Background(), store))

	doc, err := content.ParseString(testDocument)
	require.NoError(t, err)

	notes, err := patchnotes.Parse(strings.NewReader(`{"patch_notes":[{"version":"1.2","title":"Search","content":"<p>Cross-language search</p>"}]}`))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg, Deps{Store: store, Index: ix, Document: doc, PatchNotes: notes}, logger)
	return srv, cfg
}

func get(t *testing.T, h http.Handler, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandleRobotsTxt(t *testing.T) {
	srv, _ := testServer(t)

	resp := get(t, http.HandlerFunc(srv.handleRobotsTxt), "/robots.txt")
	text := readBody(t, resp)

	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, text, "Disallow: /api/")
	assert.Contains(t, text, "Sitemap: https://docs.example.com/sitemaps/sitemap-index.xml")
}

func TestHandleHealthReportsIndexState(t *testing.T) {
	srv, _ := testServer(t)

	var body struct {
		Status string `json:"status"`
		Index  string `json:"index"`
		Keys   int    `json:"keys"`
	}
	resp := get(t, srv.Handler(), "/healthz")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ready", body.Index)
	assert.Equal(t, 5, body.Keys)
}

func TestPageRendersTranslation(t *testing.T) {
	srv, _ := testServer(t)

	resp := get(t, srv.Handler(), "/fr/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := readBody(t, resp)

	assert.Contains(t, page, `<html lang="fr">`)
	assert.Contains(t, page, "Bonjour monde")
	assert.Contains(t, page, "A quick reply", "missing keys fall back to the default language")
	assert.Contains(t, page, `class="toc-list"`)
	assert.Contains(t, page, "Cross-language search")
	assert.Contains(t, page, `hreflang="en" href="https://docs.example.com/en/"`)
}

func TestRootServesDefaultLanguage(t *testing.T) {
	srv, _ := testServer(t)

	page := readBody(t, get(t, srv.Handler(), "/"))
	assert.Contains(t, page, `<html lang="en">`)
	assert.Contains(t, page, "Hello world")
}

func TestRootHonoursPreferredLanguage(t *testing.T) {
	srv, _ := testServer(t)

	assert.Contains(t, readBody(t, get(t, srv.Handler(), "/?lang=fr")), `<html lang="fr">`)
	assert.Contains(t, readBody(t, get(t, srv.Handler(), "/?lang=xx")), `<html lang="en">`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lang", Value: "fr"})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "Bonjour monde")
}

func TestUnknownPageIsNotFound(t *testing.T) {
	srv, _ := testServer(t)

	for _, target := range []string{"/de/", "/fr/missing/page"} {
		resp := get(t, srv.Handler(), target)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, target)
		assert.Contains(t, readBody(t, resp), "Page not found")
	}
}

func TestPageWithQueryIsHighlighted(t *testing.T) {
	srv, _ := testServer(t)

	page := readBody(t, get(t, srv.Handler(), "/fr/?q=hello"))
	assert.Contains(t, page, "cross-language-match")
	assert.Contains(t, page, "1 / 1")
}

func TestAPISearchCrossLanguage(t *testing.T) {
	srv, _ := testServer(t)

	var res searchResponse
	resp := get(t, srv.Handler(), "/api/search?q=hello&lang=fr")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))

	assert.Equal(t, "fr", res.Language)
	assert.Equal(t, []string{"greeting"}, res.Keys)
	assert.Equal(t, "1 / 1", res.Status)
	assert.Equal(t, "ready", res.IndexState)
	assert.Contains(t, res.Content, "cross-language-match")
}

func TestAPISearchPositionAndDirection(t *testing.T) {
	srv, _ := testServer(t)

	var res searchResponse
	resp := get(t, srv.Handler(), "/api/search?q=quick&lang=en&pos=1&dir=1")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0, res.Current, "next from the last match wraps to the first")
	assert.Equal(t, "1 / 2", res.Status)

	resp = get(t, srv.Handler(), "/api/search?q=quick&lang=en&dir=-1")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "2 / 2", res.Status)
}

func TestAPISearchUnknownLanguageFallsBack(t *testing.T) {
	srv, _ := testServer(t)

	var res searchResponse
	resp := get(t, srv.Handler(), "/api/search?q=ab&lang=xx")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "en", res.Language)
	assert.Empty(t, res.Keys)
	assert.Equal(t, "empty", res.State)
}

func TestAPISearchRejectsPost(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search?q=hello", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPILanguages(t *testing.T) {
	srv, _ := testServer(t)

	var langs []languageResponse
	require.NoError(t, json.NewDecoder(get(t, srv.Handler(), "/api/languages").Body).Decode(&langs))
	require.Len(t, langs, 2)
	assert.Equal(t, languageResponse{Code: "en", Name: "English", URL: "/en/", Default: true, Loaded: true}, langs[0])
	assert.Equal(t, "/fr/", langs[1].URL)
}

func TestAPIPatchNotes(t *testing.T) {
	srv, _ := testServer(t)

	var body struct {
		PatchNotes []patchnotes.Note `json:"patch_notes"`
	}
	require.NoError(t, json.NewDecoder(get(t, srv.Handler(), "/api/patch-notes").Body).Decode(&body))
	require.Len(t, body.PatchNotes, 1)
	assert.Equal(t, "1.2", body.PatchNotes[0].Version)
}

func TestInvalidateDropsCachedPages(t *testing.T) {
	srv, _ := testServer(t)

	_, err := srv.translated(context.Background(), "fr")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.pages.Len())
	srv.Invalidate()
	assert.Zero(t, srv.pages.Len())
}

func TestSitemapsServed(t *testing.T) {
	srv, cfg := testServer(t)
	dir := filepath.Join(cfg.PublicHTMLDir, "sitemaps")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitemap-index.xml"), []byte("<sitemapindex/>"), 0o644))

	resp := get(t, srv.Handler(), "/sitemaps/sitemap-index.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<sitemapindex/>", readBody(t, resp))
}

func dialLive(t *testing.T, ts *httptest.Server, lang string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/search?lang=" + lang
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg serverMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestLiveSearchSession(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dialLive(t, ts, "fr")

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "search", Query: "quick"}))
	msg := readMessage(t, conn)
	require.Equal(t, "result", msg.Type)
	assert.Equal(t, []string{"k1", "k2"}, msg.Result.Keys)
	assert.Equal(t, "1 / 2", msg.Result.Status)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "next"}))
	assert.Equal(t, "2 / 2", readMessage(t, conn).Result.Status)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "clear"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "idle", msg.Result.State)
	assert.NotContains(t, msg.Content, "<mark")
}

func TestLiveSearchDebouncesInput(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dialLive(t, ts, "en")

	for _, q := range []string{"r", "re", "rep", "reply"} {
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "input", Query: q}))
	}
	msg := readMessage(t, conn)
	assert.Equal(t, "reply", msg.Result.Query)
	assert.Equal(t, []string{"k2"}, msg.Result.Keys)
	assert.Contains(t, msg.Content, `<mark class="search-mark">reply</mark>`)
}

func TestLiveSearchUnknownMessage(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dialLive(t, ts, "en")

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "bogus"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "bogus")
}

func TestLogRequestsStatus200(t *testing.T) {
	srv, _ := testServer(t)

	var buf bytes.Buffer
	srv.logger = slog.New(slog.NewTextHandler(&buf, nil))

	handler := srv.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "duration=")
}

func TestLogRequestsImplicit200(t *testing.T) {
	srv, _ := testServer(t)

	var buf bytes.Buffer
	srv.logger = slog.New(slog.NewTextHandler(&buf, nil))

	handler := srv.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/implicit", nil))

	assert.Contains(t, buf.String(), "status=200")
}

func TestResponseWriterImplementsHijacker(t *testing.T) {
	var rw any = &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, flusher := rw.(http.Flusher)
	_, hijacker := rw.(http.Hijacker)
	assert.True(t, flusher)
	assert.True(t, hijacker)
}

func TestStaticAssetCacheHeaders(t *testing.T) {
	mux := http.NewServeMux()
	staticFS, _ := fs.Sub(webAssets, "static")
	etag := computeStaticETag()
	mux.Handle("/static/", staticCacheHandler(etag,
		http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
	))

	resp := get(t, mux, "/static/viewer.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=86400", resp.Header.Get("Cache-Control"))
	assert.Equal(t, etag, resp.Header.Get("ETag"))

	req := httptest.NewRequest(http.MethodGet, "/static/viewer.js", nil)
	req.Header.Set("If-None-Match", etag)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestGzipCompressesJSON(t *testing.T) {
	handler := gzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	gr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	defer func() { _ = gr.Close() }()
	body, _ := io.ReadAll(gr)
	assert.Equal(t, `{"status":"ok"}`, string(body))
}

func TestGzipSkipsWithoutAcceptEncoding(t *testing.T) {
	handler := gzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("hello"))
	}))

	resp := get(t, handler, "/")
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "hello", readBody(t, resp))
}

func TestParseDirQuery(t *testing.T) {
	for raw, want := range map[string]int{"": 0, "1": 1, "5": 1, "-1": -1, "-3": -1, "x": 0} {
		req := httptest.NewRequest(http.MethodGet, "/api/search?dir="+raw, nil)
		assert.Equal(t, want, parseDirQuery(req), "dir=%q", raw)
	}
}
