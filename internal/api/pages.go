package api

import (
	"bytes"
	"embed"
	"net/http"
	"os"

	"go.uber.org/zap"
)

//go:embed static/index.html static/overlay.html
var staticFS embed.FS

var (
	indexHTML   = mustRead("static/index.html")
	overlayHTML = mustRead("static/overlay.html")
	themeSlot   = []byte("/*theme*/")
)

func mustRead(name string) []byte {
	data, err := staticFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return data
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		s.logger.Debug("write index page", zap.Error(err))
	}
}

// overlayPage inlines the optional theme stylesheet, re-read per request so
// edits show up on reload.
func (s *Server) overlayPage(w http.ResponseWriter, _ *http.Request) {
	page := overlayHTML
	if s.opts.ThemeCSSPath != "" {
		if css, err := os.ReadFile(s.opts.ThemeCSSPath); err == nil {
			css = bytes.ReplaceAll(css, []byte("</style"), []byte("<\\/style"))
			page = bytes.Replace(overlayHTML, themeSlot, css, 1)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		s.logger.Debug("write overlay page", zap.Error(err))
	}
}
