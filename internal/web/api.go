package web

import (
	"bytes"
	"context"
	"net/http"

	"github.com/canonical/docs-viewer/internal/finder"
	"github.com/canonical/docs-viewer/internal/patchnotes"
	"github.com/canonical/docs-viewer/internal/pipeline"
)

type searchResponse struct {
	finder.Result
	Language   string `json:"language"`
	IndexState string `json:"index_state"`
	Content    string `json:"content"`
}

type languageResponse struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Flag    string `json:"flag,omitempty"`
	URL     string `json:"url"`
	Default bool   `json:"default"`
	Loaded  bool   `json:"loaded"`
}

// handleSearch runs one pass: pos selects the current match, dir then
// steps from it.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	code := s.store.Resolve(r.URL.Query().Get("lang"))
	resp, err := s.search(r.Context(), code, r.URL.Query().Get("q"), parseIntQuery(r, "pos", 0), parseDirQuery(r))
	if err != nil {
		s.logger.Error("search failed", "language", code, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) search(ctx context.Context, code, query string, pos, dir int) (searchResponse, error) {
	page, err := s.translated(ctx, code)
	if err != nil {
		return searchResponse{}, err
	}
	f, _ := s.newFinder(page, code, finder.Options{Logger: s.logger})
	defer f.Close()

	res := f.Search(query)
	if pos > 0 {
		res = f.Seek(pos)
	}
	switch {
	case dir > 0:
		res = f.Next()
	case dir < 0:
		res = f.Prev()
	}

	var buf bytes.Buffer
	if err := f.RenderContent(&buf); err != nil {
		return searchResponse{}, err
	}
	return searchResponse{
		Result:     res,
		Language:   code,
		IndexState: s.index.State().String(),
		Content:    buf.String(),
	}, nil
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := s.store.Languages()
	out := make([]languageResponse, 0, len(langs))
	for _, l := range langs {
		_, loaded := s.store.Cached(l.Code)
		out = append(out, languageResponse{
			Code:    l.Code,
			Name:    l.Name,
			Flag:    l.Flag,
			URL:     pipeline.PageURL(l.Code),
			Default: l.Code == s.store.DefaultLanguage(),
			Loaded:  loaded,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePatchNotes(w http.ResponseWriter, _ *http.Request) {
	notes := s.notes
	if notes == nil {
		notes = []patchnotes.Note{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patch_notes": notes})
}
