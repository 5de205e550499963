package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/mailer"
	"marketbrief/internal/infra/market"
	"marketbrief/internal/infra/scraper"
	"marketbrief/internal/observability/logging"
	"marketbrief/internal/observability/metrics"
	"marketbrief/internal/observability/tracing"
	"marketbrief/internal/pkg/settings"
	"marketbrief/internal/render"
	"marketbrief/internal/repository"
	"marketbrief/internal/resilience/retry"
	"marketbrief/internal/usecase/digest"
	"marketbrief/internal/usecase/selection"
)

// ErrRunInProgress is returned when a trigger fires while the newsletter
// already has an in-flight run. The new fire is skipped, not queued.
var ErrRunInProgress = errors.New("run already in progress for newsletter")

// RunResult is the summary handed back to the scheduler and the manual-run
// endpoint.
type RunResult struct {
	RunID        string            `json:"run_id"`
	Status       entity.RunStatus  `json:"status"`
	FeedsTotal   int               `json:"feeds_total"`
	FeedsOK      int               `json:"feeds_ok"`
	ArticlesSeen int               `json:"articles_seen"`
	ArticlesUsed int               `json:"articles_used"`
	EmailSent    bool              `json:"email_sent"`
}

// QuoteSource is the market-data capability the pipeline consumes.
type QuoteSource interface {
	Enabled() bool
	Lookup(ctx context.Context, symbols []string) []market.Quote
}

// ReportGenerator is the cascade capability the pipeline consumes.
type ReportGenerator interface {
	Generate(ctx context.Context, prompt digest.Prompt, items []selection.Scored, events digest.EventLogger) (digest.Outcome, error)
}

// Config bounds one run.
type Config struct {
	// RunDeadline is the whole-run soft deadline.
	RunDeadline time.Duration

	// FromAddress is the fallback sender when settings carry none.
	FromAddress string
}

// DefaultConfig returns the standard pipeline bounds.
func DefaultConfig() Config {
	return Config{RunDeadline: 8 * time.Minute}
}

// Service runs the pipeline for one newsletter at a time per newsletter.
type Service struct {
	newsletters repository.NewsletterRepository
	articles    repository.ArticleRepository
	runs        repository.RunRepository
	fetcher     scraper.Fetcher
	quotes      QuoteSource
	generator   ReportGenerator
	mailers     []mailer.Mailer
	settings    *settings.Service
	cfg         Config
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[int64]context.CancelFunc // newsletter id -> cancel of its running pipeline
	byRunID  map[string]int64
}

// NewService wires the pipeline.
func NewService(
	newsletters repository.NewsletterRepository,
	articles repository.ArticleRepository,
	runs repository.RunRepository,
	fetcher scraper.Fetcher,
	quotes QuoteSource,
	generator ReportGenerator,
	mailers []mailer.Mailer,
	settingsSvc *settings.Service,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 8 * time.Minute
	}
	return &Service{
		newsletters: newsletters,
		articles:    articles,
		runs:        runs,
		fetcher:     fetcher,
		quotes:      quotes,
		generator:   generator,
		mailers:     mailers,
		settings:    settingsSvc,
		cfg:         cfg,
		logger:      logger,
		inflight:    make(map[int64]context.CancelFunc),
		byRunID:     make(map[string]int64),
	}
}

// Cancel aborts the in-flight run with the given ID, if any. State mutation
// stops between stages; the run terminates as failed with reason cancelled.
func (s *Service) Cancel(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	newsletterID, ok := s.byRunID[runID]
	if !ok {
		return false
	}
	if cancel, ok := s.inflight[newsletterID]; ok {
		cancel()
		return true
	}
	return false
}

// Run executes one pipeline run for the newsletter. At most one run per
// newsletter is in flight; concurrent triggers return ErrRunInProgress.
func (s *Service) Run(ctx context.Context, newsletterID int64) (RunResult, error) {
	newsletter, err := s.newsletters.Get(ctx, newsletterID)
	if err != nil {
		return RunResult{}, fmt.Errorf("load newsletter %d: %w", newsletterID, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunDeadline)
	defer cancel()

	run := &entity.Run{
		RunID:        uuid.New().String(),
		NewsletterID: newsletter.ID,
		StartedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	if _, busy := s.inflight[newsletter.ID]; busy {
		s.mu.Unlock()
		return RunResult{}, fmt.Errorf("%w: %s", ErrRunInProgress, newsletter.Slug)
	}
	s.inflight[newsletter.ID] = cancel
	s.byRunID[run.RunID] = newsletter.ID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, newsletter.ID)
		delete(s.byRunID, run.RunID)
		s.mu.Unlock()
	}()

	// The run row must exist before any run log references it.
	if err := retry.WithBackoff(runCtx, retry.DBConfig(), func() error {
		return s.runs.CreateStarted(runCtx, run)
	}); err != nil {
		return RunResult{}, fmt.Errorf("create run row: %w", err)
	}

	rec := newRecorder(run.RunID, s.runs, s.logger)
	rec.Log(entity.LogLevelInfo, "run.started", map[string]any{
		"newsletter": newsletter.Slug,
	})

	s.execute(runCtx, newsletter, run, rec)

	// Normalize terminal reasons when the run context expired mid-stage: a
	// cancelled run is failed with reason cancelled; a blown deadline keeps
	// whatever partial work happened.
	if errors.Is(runCtx.Err(), context.Canceled) && run.Status == entity.RunStatusFailed {
		run.Error = "cancelled"
	} else if errors.Is(runCtx.Err(), context.DeadlineExceeded) && run.Status == entity.RunStatusFailed && run.Error != "cancelled" {
		run.Error = "deadline_exceeded"
		if run.FeedsOK > 0 {
			run.Status = entity.RunStatusPartial
		}
	}

	// Terminal status transition is the last write of the run.
	now := time.Now().UTC()
	run.FinishedAt = &now
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer finishCancel()
	if err := retry.WithBackoff(finishCtx, retry.DBConfig(), func() error {
		return s.runs.Finish(finishCtx, run)
	}); err != nil {
		s.logger.Error("failed to finish run", slog.String("run_id", run.RunID), slog.Any("error", err))
	}

	metrics.RecordRun(newsletter.Slug, string(run.Status), now.Sub(run.StartedAt))
	rec.Log(entity.LogLevelInfo, "run.finished", map[string]any{
		"status":        string(run.Status),
		"feeds_ok":      run.FeedsOK,
		"articles_used": run.ArticlesUsed,
		"email_sent":    run.EmailSent,
	})

	return RunResult{
		RunID:        run.RunID,
		Status:       run.Status,
		FeedsTotal:   run.FeedsTotal,
		FeedsOK:      run.FeedsOK,
		ArticlesSeen: run.ArticlesSeen,
		ArticlesUsed: run.ArticlesUsed,
		EmailSent:    run.EmailSent,
	}, nil
}

// execute drives the stages and leaves the terminal status on run.
func (s *Service) execute(ctx context.Context, newsletter *entity.Newsletter, run *entity.Run, rec *recorder) {
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		rec.Log(entity.LogLevelWarn, "settings.load_failed", map[string]any{"error": logging.RedactError(err)})
		cfg = settings.Defaults()
	}

	// Fetch.
	selected, aiInvokable := s.stageIngest(ctx, newsletter, run, rec, cfg)
	if !aiInvokable {
		return
	}

	// Market data never fails the run.
	symbols := s.watchlist(ctx, newsletter)
	quotes := s.stageQuotes(ctx, newsletter, run, rec, symbols)

	// Cascade.
	now := time.Now().UTC()
	prompt := digest.BuildPrompt(digest.PromptInput{
		Newsletter: newsletter,
		Items:      selected,
		Quotes:     quotes,
		Symbols:    symbols,
		Now:        now,
	})

	genCtx, span := tracing.GetTracer().Start(ctx, "pipeline.cascade")
	outcome, err := s.generator.Generate(genCtx, prompt, selected, rec)
	span.End()
	if err != nil {
		run.Status = entity.RunStatusFailed
		if errors.Is(err, context.Canceled) {
			run.Error = "cancelled"
			rec.Log(entity.LogLevelError, "run.cancelled", nil)
		} else {
			run.Error = "deadline_exceeded"
			rec.Log(entity.LogLevelError, "run.deadline_exceeded", nil)
		}
		return
	}
	run.AIProviderLabel = outcome.ProviderLabel
	run.AITokensIn = outcome.TokensIn
	run.AITokensOut = outcome.TokensOut

	// Cancelled or expired while the cascade ran: skip rendering, archiving
	// and delivery; Run records the terminal reason.
	if ctx.Err() != nil {
		run.Status = entity.RunStatusFailed
		return
	}

	// Render and archive. The digest is persisted before delivery so it stays
	// retrievable even when the email transport fails.
	loc, locErr := time.LoadLocation(newsletter.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	localNow := now.In(loc)
	subject := render.Subject(newsletter.Name, localNow)
	html := render.Email(render.EmailInput{
		NewsletterName:  newsletter.Name,
		LocalNow:        localNow,
		MarketDay:       digest.MarketDay(localNow),
		Quotes:          quotes,
		SummaryMarkdown: outcome.Markdown,
		Symbols:         symbols,
	})
	text := render.Text(render.EmailInput{
		NewsletterName:  newsletter.Name,
		LocalNow:        localNow,
		Quotes:          quotes,
		SummaryMarkdown: outcome.Markdown,
		Symbols:         symbols,
	})

	saveCtx := context.WithoutCancel(ctx)
	if err := retry.WithBackoff(saveCtx, retry.DBConfig(), func() error {
		return s.runs.SaveDigest(saveCtx, &entity.Digest{
			RunID:     run.RunID,
			Subject:   subject,
			HTML:      html,
			CreatedAt: time.Now().UTC(),
		})
	}); err != nil {
		run.Status = entity.RunStatusFailed
		run.Error = "digest persist failed"
		rec.Log(entity.LogLevelError, "digest.persist_failed", map[string]any{"error": logging.RedactError(err)})
		return
	}
	rec.Log(entity.LogLevelInfo, "digest.persisted", map[string]any{"subject": subject})

	// Deliver.
	emailErr := s.stageDeliver(ctx, newsletter, run, rec, cfg, subject, html, text)
	if ctx.Err() != nil && !run.EmailSent {
		run.Status = entity.RunStatusFailed
		return
	}

	// Terminal status per the run-state contract: success needs a real AI
	// report, a delivered email and at least one healthy feed.
	switch {
	case run.FeedsOK == 0:
		run.Status = entity.RunStatusFailed
		run.Error = "no feeds succeeded"
	case !outcome.Degenerate && run.EmailSent:
		run.Status = entity.RunStatusSuccess
	default:
		run.Status = entity.RunStatusPartial
		if outcome.Degenerate {
			run.Error = "ai cascade exhausted"
		} else if emailErr != nil {
			run.Error = "email delivery failed"
		}
	}
}

// stageIngest fetches, normalizes, dedupes, ranks and persists the selection.
// It returns false when the run already reached a terminal state.
func (s *Service) stageIngest(ctx context.Context, newsletter *entity.Newsletter, run *entity.Run, rec *recorder, cfg settings.Settings) ([]selection.Scored, bool) {
	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.ingest")
	defer span.End()

	feeds, err := s.newsletters.ListEnabledFeeds(ctx, newsletter.ID)
	if err != nil {
		run.Status = entity.RunStatusFailed
		run.Error = "load feeds failed"
		rec.Log(entity.LogLevelError, "feeds.load_failed", map[string]any{"error": logging.RedactError(err)})
		return nil, false
	}
	run.FeedsTotal = len(feeds)

	results := scraper.FetchAll(ctx, s.fetcher, feeds, cfg.MaxConcurrency)
	raw := make([]selection.RawItem, 0, 64)
	for _, res := range results {
		if !res.OK {
			rec.Log(entity.LogLevelWarn, "feed.unreachable", map[string]any{
				"feed_id": res.Feed.ID,
				"url":     res.Feed.URL,
				"error":   logging.RedactError(res.Err),
			})
			continue
		}
		run.FeedsOK++
		for _, item := range res.Items {
			raw = append(raw, selection.RawItem{
				Title:       item.Title,
				Link:        item.Link,
				Description: item.Description,
				PublishedAt: item.PublishedAt,
			})
		}
	}
	rec.Log(entity.LogLevelInfo, "feeds.fetched", map[string]any{
		"feeds_total": run.FeedsTotal,
		"feeds_ok":    run.FeedsOK,
		"items":       len(raw),
	})

	if run.FeedsOK == 0 {
		run.Status = entity.RunStatusFailed
		run.Error = "no feeds succeeded"
		return nil, false
	}

	items := selection.Normalize(raw)
	run.ArticlesSeen = len(items)
	if cfg.MaxArticlesConsidered > 0 && len(items) > cfg.MaxArticlesConsidered {
		items = items[:cfg.MaxArticlesConsidered]
	}

	// Dedupe against the seen set; only unseen items go forward.
	hashes := make([]string, len(items))
	for i, it := range items {
		hashes[i] = it.ContentHash
	}
	seen, err := s.articles.FilterSeen(ctx, newsletter.ID, hashes)
	if err != nil {
		run.Status = entity.RunStatusFailed
		run.Error = "dedupe lookup failed"
		rec.Log(entity.LogLevelError, "dedupe.lookup_failed", map[string]any{"error": logging.RedactError(err)})
		return nil, false
	}
	fresh := make([]selection.Item, 0, len(items))
	for _, it := range items {
		if !seen[it.ContentHash] {
			fresh = append(fresh, it)
		}
	}

	// Seen-hash and article rows are inserted before any selection row.
	articleRows := make([]*entity.Article, len(fresh))
	for i, it := range fresh {
		articleRows[i] = &entity.Article{
			ContentHash:  it.ContentHash,
			Source:       it.Source,
			Title:        it.Title,
			CanonicalURL: it.CanonicalURL,
			PublishedAt:  it.PublishedAt,
		}
	}
	var ids map[string]int64
	if err := retry.WithBackoff(ctx, retry.DBConfig(), func() error {
		var markErr error
		ids, markErr = s.articles.MarkSeen(ctx, newsletter.ID, articleRows)
		return markErr
	}); err != nil {
		run.Status = entity.RunStatusFailed
		run.Error = "article persist failed"
		rec.Log(entity.LogLevelError, "articles.persist_failed", map[string]any{"error": logging.RedactError(err)})
		return nil, false
	}

	selected := selection.Rank(fresh, time.Now().UTC(), selection.Config{
		MaxForAI:     cfg.MaxArticlesForAI,
		PerSourceCap: cfg.PerSourceCap,
	})
	run.ArticlesUsed = len(selected)
	metrics.RecordSelection(len(selected))

	runArticles := make([]entity.RunArticle, len(selected))
	for i, sel := range selected {
		runArticles[i] = entity.RunArticle{
			RunID:     run.RunID,
			ArticleID: ids[sel.Item.ContentHash],
			Rank:      i + 1,
			Score:     sel.Score,
		}
	}
	if err := retry.WithBackoff(ctx, retry.DBConfig(), func() error {
		return s.runs.AddRunArticles(ctx, run.RunID, runArticles)
	}); err != nil {
		run.Status = entity.RunStatusFailed
		run.Error = "selection persist failed"
		rec.Log(entity.LogLevelError, "selection.persist_failed", map[string]any{"error": logging.RedactError(err)})
		return nil, false
	}

	rec.Log(entity.LogLevelInfo, "selection.done", map[string]any{
		"seen":   run.ArticlesSeen,
		"fresh":  len(fresh),
		"ranked": len(selected),
	})
	return selected, true
}

// stageQuotes looks up and persists watchlist quotes. Failures skip symbols;
// the run proceeds with whatever was collected.
func (s *Service) stageQuotes(ctx context.Context, newsletter *entity.Newsletter, run *entity.Run, rec *recorder, symbols []string) []*entity.MarketQuote {
	if !newsletter.IncludeWatchlist || s.quotes == nil || !s.quotes.Enabled() || len(symbols) == 0 {
		return nil
	}
	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.quotes")
	defer span.End()

	captured := time.Now().UTC()
	quotes := s.quotes.Lookup(ctx, symbols)
	out := make([]*entity.MarketQuote, 0, len(quotes))
	for _, q := range quotes {
		mq := &entity.MarketQuote{
			RunID:         run.RunID,
			Symbol:        q.Symbol,
			Price:         q.Price,
			ChangeAmount:  q.ChangeAmount,
			ChangePercent: q.ChangePercent,
			CapturedAt:    captured,
		}
		if err := s.runs.UpsertQuote(ctx, mq); err != nil {
			rec.Log(entity.LogLevelWarn, "market.persist_failed", map[string]any{
				"symbol": q.Symbol,
				"error":  logging.RedactError(err),
			})
			continue
		}
		out = append(out, mq)
	}
	rec.Log(entity.LogLevelInfo, "market.captured", map[string]any{
		"requested": len(symbols),
		"captured":  len(out),
	})
	return out
}

func (s *Service) watchlist(ctx context.Context, newsletter *entity.Newsletter) []string {
	if !newsletter.IncludeWatchlist {
		return nil
	}
	symbols, err := s.newsletters.ListSymbols(ctx, newsletter.ID)
	if err != nil {
		s.logger.Warn("failed to load watchlist", slog.Int64("newsletter_id", newsletter.ID), slog.Any("error", err))
		return nil
	}
	return symbols
}

// stageDeliver sends the digest through the first configured transport.
func (s *Service) stageDeliver(ctx context.Context, newsletter *entity.Newsletter, run *entity.Run, rec *recorder, cfg settings.Settings, subject, html, text string) error {
	recipients := newsletter.Recipients
	if len(recipients) == 0 {
		recipients = cfg.DefaultRecipients
	}
	from := cfg.FromAddress
	if from == "" {
		from = s.cfg.FromAddress
	}

	if len(s.mailers) == 0 || len(recipients) == 0 || from == "" {
		rec.Log(entity.LogLevelWarn, "email.skipped", map[string]any{
			"transports": len(s.mailers),
			"recipients": len(recipients),
		})
		return nil
	}

	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.deliver")
	defer span.End()

	transport := s.mailers[0]
	err := transport.Send(ctx, mailer.Message{
		From:    from,
		To:      recipients,
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	metrics.RecordEmailSend(transport.Name(), err == nil)
	if err != nil {
		rec.Log(entity.LogLevelError, "email.transport_failure", map[string]any{
			"transport": transport.Name(),
			"error":     logging.RedactError(err),
		})
		return err
	}

	run.EmailSent = true
	rec.Log(entity.LogLevelInfo, "email.sent", map[string]any{
		"transport":  transport.Name(),
		"recipients": len(recipients),
	})
	return nil
}
