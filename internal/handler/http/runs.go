package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/handler/http/respond"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var newsletterID int64
	if raw := r.URL.Query().Get("newsletter_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, fmt.Errorf("%w: invalid newsletter_id", entity.ErrValidation))
			return
		}
		newsletterID = id
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	runs, err := s.Runs.List(r.Context(), newsletterID, limit)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathRunID(w, r)
	if !ok {
		return
	}
	run, err := s.Runs.Get(r.Context(), runID)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	articles, err := s.Articles.ListByRun(r.Context(), runID)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	quotes, err := s.Runs.ListQuotes(r.Context(), runID)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"articles": articles,
		"quotes":   quotes,
	})
}

func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathRunID(w, r)
	if !ok {
		return
	}
	logs, err := s.Runs.ListLogs(r.Context(), runID)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, logs)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathRunID(w, r)
	if !ok {
		return
	}
	cancelled := s.Pipeline.Cancel(runID)
	respond.JSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func pathRunID(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := chi.URLParam(r, "runID")
	if _, err := uuid.Parse(runID); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("%w: invalid run id", entity.ErrValidation))
		return "", false
	}
	return runID, true
}
