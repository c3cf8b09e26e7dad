package pipeline

import (
	"path"
	"strings"
)

const pageFile = "index.html"

// PagePath is the published file of a language, relative to the public
// HTML root.
func PagePath(code string) string {
	if code == "" {
		return pageFile
	}
	return path.Join(code, pageFile)
}

// PageURL is the URL path a language is served from.
func PageURL(code string) string {
	if code == "" {
		return "/"
	}
	return "/" + code + "/"
}

// LanguageFromURL extracts the language segment of a page URL. It returns
// "" for the site root and false for anything that is not a page URL.
func LanguageFromURL(urlPath string) (string, bool) {
	p := strings.TrimSuffix(urlPath, pageFile)
	if p == "/" || p == "" {
		return "", true
	}
	p = strings.Trim(p, "/")
	if p == "" || strings.Contains(p, "/") {
		return "", false
	}
	return p, true
}
