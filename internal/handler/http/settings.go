package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"marketbrief/internal/handler/http/respond"
	"marketbrief/internal/pkg/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.Settings.All(r.Context())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, all)
}

// handlePutSettings applies a bag of settings. Every pair is validated up
// front; one invalid pair rejects the whole request so the bag never ends up
// half-applied.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	for key, value := range req {
		if err := settings.Validate(key, value); err != nil {
			respond.DomainError(w, err)
			return
		}
	}
	for key, value := range req {
		if err := s.Settings.Set(r.Context(), key, value); err != nil {
			respond.DomainError(w, err)
			return
		}
	}
	s.reloadSchedule()
	respond.JSON(w, http.StatusOK, map[string]int{"updated": len(req)})
}
