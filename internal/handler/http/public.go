package http

import (
	"net/http"

	"marketbrief/internal/handler/http/respond"
)

// handleLatestDigest serves the most recent digest HTML. It is public: the
// digest embeds no secrets.
func (s *Server) handleLatestDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.Runs.LatestDigest(r.Context(), 0)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	writeDigestHTML(w, d.HTML)
}

// handlePublicDigest serves one run's archived digest HTML.
func (s *Server) handlePublicDigest(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathRunID(w, r)
	if !ok {
		return
	}
	d, err := s.Runs.GetDigest(r.Context(), runID)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	writeDigestHTML(w, d.HTML)
}

func writeDigestHTML(w http.ResponseWriter, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
