package api

import (
	"bytes"
	"net/http"

	"vip/internal/version"
	"vip/internal/web"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, web.IndexPage, web.IndexData{Version: version.Version})
}

// renderPage renders an HTML page with status 200. A template fault becomes
// a 500.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, page string, data any) {
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, page, data); err != nil {
		s.logger.Error("Failed to render page",
			"page", page,
			"error", err.Error(),
			"requestID", GetRequestID(r.Context()),
		)
		InternalError(w, "Failed to render page", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
