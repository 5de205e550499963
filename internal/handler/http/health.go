package http

import (
	"net/http"

	"marketbrief/internal/handler/http/respond"
)

// handleLiveness always answers healthy while the process serves requests.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports ready once migrations ran and the scheduler is up.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleRingLogs serves the volatile in-process log buffer for the live
// health-and-logs view.
func (s *Server) handleRingLogs(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, s.Ring.Snapshot())
}
