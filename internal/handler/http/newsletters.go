package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/handler/http/respond"
	"marketbrief/internal/usecase/pipeline"
)

// newsletterDTO is the admin wire format for newsletters.
type newsletterDTO struct {
	ID               int64    `json:"id,omitempty"`
	Slug             string   `json:"slug"`
	Name             string   `json:"name"`
	Timezone         string   `json:"timezone"`
	ScheduleTimes    []string `json:"schedule_times"`
	Active           bool     `json:"active"`
	IncludeWatchlist bool     `json:"include_watchlist"`
	NewsletterType   string   `json:"newsletter_type"`
	Verbosity        string   `json:"verbosity"`
	CustomPrompt     string   `json:"custom_prompt"`
	Recipients       []string `json:"recipients"`
}

func toEntity(dto newsletterDTO) *entity.Newsletter {
	return &entity.Newsletter{
		ID:               dto.ID,
		Slug:             dto.Slug,
		Name:             dto.Name,
		Timezone:         dto.Timezone,
		ScheduleTimes:    dto.ScheduleTimes,
		Active:           dto.Active,
		IncludeWatchlist: dto.IncludeWatchlist,
		Type:             entity.NewsletterType(dto.NewsletterType),
		Verbosity:        entity.Verbosity(dto.Verbosity),
		CustomPrompt:     dto.CustomPrompt,
		Recipients:       dto.Recipients,
	}
}

func fromEntity(n *entity.Newsletter) newsletterDTO {
	return newsletterDTO{
		ID:               n.ID,
		Slug:             n.Slug,
		Name:             n.Name,
		Timezone:         n.Timezone,
		ScheduleTimes:    n.ScheduleTimes,
		Active:           n.Active,
		IncludeWatchlist: n.IncludeWatchlist,
		NewsletterType:   string(n.Type),
		Verbosity:        string(n.Verbosity),
		CustomPrompt:     n.CustomPrompt,
		Recipients:       n.Recipients,
	}
}

func (s *Server) handleListNewsletters(w http.ResponseWriter, r *http.Request) {
	newsletters, err := s.Newsletters.List(r.Context())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	out := make([]newsletterDTO, 0, len(newsletters))
	for _, n := range newsletters {
		out = append(out, fromEntity(n))
	}
	respond.JSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateNewsletter(w http.ResponseWriter, r *http.Request) {
	var dto newsletterDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	n := toEntity(dto)
	if err := n.Validate(); err != nil {
		respond.DomainError(w, err)
		return
	}
	if err := s.Newsletters.Create(r.Context(), n); err != nil {
		respond.DomainError(w, err)
		return
	}
	s.reloadSchedule()
	respond.JSON(w, http.StatusCreated, fromEntity(n))
}

func (s *Server) handleGetNewsletter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := s.Newsletters.Get(r.Context(), id)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, fromEntity(n))
}

func (s *Server) handleUpdateNewsletter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto newsletterDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	n := toEntity(dto)
	n.ID = id
	if err := n.Validate(); err != nil {
		respond.DomainError(w, err)
		return
	}
	if err := s.Newsletters.Update(r.Context(), n); err != nil {
		respond.DomainError(w, err)
		return
	}
	s.reloadSchedule()
	respond.JSON(w, http.StatusOK, fromEntity(n))
}

func (s *Server) handleDeleteNewsletter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.Newsletters.Delete(r.Context(), id); err != nil {
		respond.DomainError(w, err)
		return
	}
	s.reloadSchedule()
	respond.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type feedDTO struct {
	ID           int64  `json:"id,omitempty"`
	NewsletterID int64  `json:"newsletter_id,omitempty"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Enabled      bool   `json:"enabled"`
	OrderIndex   int    `json:"order_index"`
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	feeds, err := s.Newsletters.ListFeeds(r.Context(), id)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	out := make([]feedDTO, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, feedDTO{
			ID: f.ID, NewsletterID: f.NewsletterID, URL: f.URL,
			Title: f.Title, Category: f.Category, Enabled: f.Enabled, OrderIndex: f.OrderIndex,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto feedDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	feed := &entity.Feed{
		NewsletterID: id,
		URL:          dto.URL,
		Title:        dto.Title,
		Category:     dto.Category,
		Enabled:      dto.Enabled,
		OrderIndex:   dto.OrderIndex,
	}
	if err := feed.Validate(); err != nil {
		respond.DomainError(w, err)
		return
	}
	if err := s.Newsletters.CreateFeed(r.Context(), feed); err != nil {
		respond.DomainError(w, err)
		return
	}
	dto.ID = feed.ID
	dto.NewsletterID = id
	respond.JSON(w, http.StatusCreated, dto)
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	feedID, ok := pathID(w, r, "feedID")
	if !ok {
		return
	}
	var dto feedDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	feed := &entity.Feed{
		ID:         feedID,
		URL:        dto.URL,
		Title:      dto.Title,
		Category:   dto.Category,
		Enabled:    dto.Enabled,
		OrderIndex: dto.OrderIndex,
	}
	if err := s.Newsletters.UpdateFeed(r.Context(), feed); err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, ok := pathID(w, r, "feedID")
	if !ok {
		return
	}
	if err := s.Newsletters.DeleteFeed(r.Context(), feedID); err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleProbeFeed fetches one URL and reports what parsed, for feed setup
// diagnostics.
func (s *Server) handleProbeFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	items, err := s.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		respond.JSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	titles := make([]string, 0, 5)
	for i, it := range items {
		if i == 5 {
			break
		}
		titles = append(titles, it.Title)
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"items":  len(items),
		"sample": titles,
	})
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	symbols, err := s.Newsletters.ListSymbols(r.Context(), id)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]string{"symbols": symbols})
}

func (s *Server) handlePutWatchlist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	normalized := make([]string, 0, len(req.Symbols))
	for _, raw := range req.Symbols {
		sym, err := entity.NormalizeSymbol(raw)
		if err != nil {
			respond.DomainError(w, err)
			return
		}
		normalized = append(normalized, sym)
	}
	if err := s.Newsletters.ReplaceSymbols(r.Context(), id, normalized); err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]string{"symbols": normalized})
}

// handleManualRun triggers a pipeline run with the same semantics as a
// scheduled fire, including overlap coalescing.
func (s *Server) handleManualRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := s.Pipeline.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			respond.Error(w, http.StatusConflict, err)
			return
		}
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// handleResetSeen deletes seen hashes inside the requested window so the
// next run reprocesses them.
func (s *Server) handleResetSeen(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Hours int `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Hours < 1 || req.Hours > 168 {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("%w: hours must be between 1 and 168", entity.ErrValidation))
		return
	}

	before, deleted, after, err := s.Articles.ResetSeenWindow(r.Context(), id, time.Duration(req.Hours)*time.Hour)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	s.Logger.Info("seen window reset",
		slog.Int64("newsletter_id", id),
		slog.Int("hours", req.Hours),
		slog.Int64("deleted", deleted))
	respond.JSON(w, http.StatusOK, map[string]int64{
		"before":  before,
		"deleted": deleted,
		"after":   after,
	})
}

func (s *Server) reloadSchedule() {
	if s.ReloadSchedule == nil {
		return
	}
	if err := s.ReloadSchedule(); err != nil {
		s.Logger.Error("schedule reload failed", slog.Any("error", err))
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("%w: invalid %s", entity.ErrValidation, param))
		return 0, false
	}
	return id, true
}

