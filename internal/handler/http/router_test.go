package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/scraper"
	"marketbrief/internal/observability/logging"
	"marketbrief/internal/pkg/settings"
	"marketbrief/internal/repository"
	"marketbrief/internal/usecase/pipeline"
)

/* ──────────────── stubs ──────────────── */

type memNewsletters struct {
	byID   map[int64]*entity.Newsletter
	nextID int64
}

func newMemNewsletters() *memNewsletters {
	return &memNewsletters{byID: map[int64]*entity.Newsletter{}, nextID: 1}
}

func (m *memNewsletters) Create(_ context.Context, n *entity.Newsletter) error {
	n.ID = m.nextID
	m.nextID++
	m.byID[n.ID] = n
	return nil
}
func (m *memNewsletters) Update(_ context.Context, n *entity.Newsletter) error {
	if _, ok := m.byID[n.ID]; !ok {
		return entity.ErrNotFound
	}
	m.byID[n.ID] = n
	return nil
}
func (m *memNewsletters) Delete(_ context.Context, id int64) error {
	if _, ok := m.byID[id]; !ok {
		return entity.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}
func (m *memNewsletters) Get(_ context.Context, id int64) (*entity.Newsletter, error) {
	n, ok := m.byID[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return n, nil
}
func (m *memNewsletters) GetBySlug(context.Context, string) (*entity.Newsletter, error) {
	return nil, entity.ErrNotFound
}
func (m *memNewsletters) List(context.Context) ([]*entity.Newsletter, error) {
	out := make([]*entity.Newsletter, 0, len(m.byID))
	for _, n := range m.byID {
		out = append(out, n)
	}
	return out, nil
}
func (m *memNewsletters) ListActive(ctx context.Context) ([]*entity.Newsletter, error) {
	return m.List(ctx)
}
func (m *memNewsletters) ListFeeds(context.Context, int64) ([]*entity.Feed, error)        { return nil, nil }
func (m *memNewsletters) ListEnabledFeeds(context.Context, int64) ([]*entity.Feed, error) { return nil, nil }
func (m *memNewsletters) CreateFeed(context.Context, *entity.Feed) error                  { return nil }
func (m *memNewsletters) UpdateFeed(context.Context, *entity.Feed) error                  { return nil }
func (m *memNewsletters) DeleteFeed(context.Context, int64) error                         { return nil }
func (m *memNewsletters) ListSymbols(context.Context, int64) ([]string, error)            { return nil, nil }
func (m *memNewsletters) ReplaceSymbols(context.Context, int64, []string) error           { return nil }

type memArticles struct {
	resetBefore, resetDeleted, resetAfter int64
}

func (m *memArticles) FilterSeen(context.Context, int64, []string) (map[string]bool, error) {
	return nil, nil
}
func (m *memArticles) MarkSeen(context.Context, int64, []*entity.Article) (map[string]int64, error) {
	return nil, nil
}
func (m *memArticles) ResetSeenWindow(context.Context, int64, time.Duration) (int64, int64, int64, error) {
	return m.resetBefore, m.resetDeleted, m.resetAfter, nil
}
func (m *memArticles) Get(context.Context, int64) (*entity.Article, error) { return nil, entity.ErrNotFound }
func (m *memArticles) ListByRun(context.Context, string) ([]repository.ArticleWithRank, error) {
	return nil, nil
}

type memRuns struct {
	digests map[string]*entity.Digest
	latest  *entity.Digest
}

func (m *memRuns) CreateStarted(context.Context, *entity.Run) error { return nil }
func (m *memRuns) Finish(context.Context, *entity.Run) error        { return nil }
func (m *memRuns) Get(context.Context, string) (*entity.Run, error) {
	return nil, entity.ErrNotFound
}
func (m *memRuns) List(context.Context, int64, int) ([]*entity.Run, error) { return nil, nil }
func (m *memRuns) AddRunArticles(context.Context, string, []entity.RunArticle) error {
	return nil
}
func (m *memRuns) UpsertQuote(context.Context, *entity.MarketQuote) error { return nil }
func (m *memRuns) ListQuotes(context.Context, string) ([]*entity.MarketQuote, error) {
	return nil, nil
}
func (m *memRuns) SaveDigest(context.Context, *entity.Digest) error { return nil }
func (m *memRuns) GetDigest(_ context.Context, runID string) (*entity.Digest, error) {
	d, ok := m.digests[runID]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return d, nil
}
func (m *memRuns) LatestDigest(context.Context, int64) (*entity.Digest, error) {
	if m.latest == nil {
		return nil, entity.ErrNotFound
	}
	return m.latest, nil
}
func (m *memRuns) AppendLog(context.Context, *entity.RunLogEntry) error { return nil }
func (m *memRuns) ListLogs(context.Context, string) ([]*entity.RunLogEntry, error) {
	return nil, nil
}
func (m *memRuns) DeleteRunsBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memSettingsRepo struct{ data map[string]string }

func (m *memSettingsRepo) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memSettingsRepo) All(context.Context) (map[string]string, error) { return m.data, nil }
func (m *memSettingsRepo) Set(_ context.Context, k, v string) error {
	m.data[k] = v
	return nil
}

type stubPipeline struct {
	result pipeline.RunResult
	err    error
}

func (p *stubPipeline) Run(context.Context, int64) (pipeline.RunResult, error) {
	return p.result, p.err
}
func (p *stubPipeline) Cancel(string) bool { return true }

type noopFetcher struct{}

func (noopFetcher) Fetch(context.Context, string) ([]scraper.FeedItem, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, http.Handler, *memRuns, *memArticles) {
	t.Helper()
	runs := &memRuns{digests: map[string]*entity.Digest{}}
	articles := &memArticles{resetBefore: 9, resetDeleted: 9, resetAfter: 0}
	srv := &Server{
		Newsletters: newMemNewsletters(),
		Articles:    articles,
		Runs:        runs,
		Settings:    settings.NewService(&memSettingsRepo{data: map[string]string{}}),
		Pipeline:    &stubPipeline{result: pipeline.RunResult{RunID: "8a9c0d7e-1111-2222-3333-444455556666", Status: entity.RunStatusSuccess}},
		Fetcher:     noopFetcher{},
		Ring:        logging.NewRing(8),
		Logger:      slog.Default(),
	}
	srv.SetReady(true)
	return srv, srv.Router(""), runs, articles
}

/* ──────────────── tests ──────────────── */

func TestNewsletterCRUD(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	body := `{"slug":"daily-market","name":"Daily Market","timezone":"America/New_York","schedule_times":["06:30"],"active":true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/newsletters", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created newsletterDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "market", created.NewsletterType, "type defaults on validation")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/newsletters/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/newsletters/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateNewsletterValidation(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	body := `{"slug":"Bad Slug!","name":"x","timezone":"UTC"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/newsletters", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetSeen(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/newsletters/1/reset-seen",
		strings.NewReader(`{"hours":24}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(9), resp["before"])
	assert.Equal(t, int64(9), resp["deleted"])
	assert.Equal(t, int64(0), resp["after"])

	// Window bounds are 1..168 hours.
	for _, hours := range []string{`{"hours":0}`, `{"hours":169}`} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/newsletters/1/reset-seen",
			strings.NewReader(hours)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestManualRunConflict(t *testing.T) {
	srv, router, _, _ := newTestServer(t)
	srv.Pipeline = &stubPipeline{err: pipeline.ErrRunInProgress}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/newsletters/1/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublicDigest(t *testing.T) {
	_, router, runs, _ := newTestServer(t)
	runID := "8a9c0d7e-1111-2222-3333-444455556666"
	runs.digests[runID] = &entity.Digest{RunID: runID, HTML: "<html><body>digest</body></html>"}
	runs.latest = runs.digests[runID]

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+runID+"/digest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "digest")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Malformed run IDs are rejected before any lookup.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/not-a-uuid/digest", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutSettings(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/settings",
		bytes.NewReader([]byte(`{"per_source_cap":"8","reasoning_level":"high"}`))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Unknown keys are rejected on write.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/settings",
		bytes.NewReader([]byte(`{"ui_theme":"dark"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv, router, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.SetReady(false)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
