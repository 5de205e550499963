// Command server hosts the whole newsletter engine in one process: the
// embedded store, the scheduler with its pipeline workers, the admin API and
// the public digest URLs.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	handler "marketbrief/internal/handler/http"
	"marketbrief/internal/infra/adapter/persistence/sqlstore"
	"marketbrief/internal/infra/db"
	"marketbrief/internal/infra/llm"
	"marketbrief/internal/infra/mailer"
	"marketbrief/internal/infra/market"
	"marketbrief/internal/infra/scheduler"
	"marketbrief/internal/infra/scraper"
	"marketbrief/internal/observability/logging"
	"marketbrief/internal/observability/tracing"
	"marketbrief/internal/pkg/config"
	"marketbrief/internal/pkg/settings"
	"marketbrief/internal/usecase/digest"
	"marketbrief/internal/usecase/pipeline"
	"marketbrief/internal/usecase/selection"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	ring := logging.NewRing(logging.DefaultRingCapacity)
	logger := logging.NewLogger(ring)
	slog.SetDefault(logger)

	shutdownTracing := tracing.Init()
	defer func() {
		if err := shutdownTracing(); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	database, driver, err := db.Open()
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	if err := db.MigrateUp(database, driver); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	newsletterRepo := sqlstore.NewNewsletterRepo(database, driver)
	articleRepo := sqlstore.NewArticleRepo(database, driver)
	runRepo := sqlstore.NewRunRepo(database, driver)
	settingsSvc := settings.NewService(sqlstore.NewSettingsRepo(database, driver))

	fetcher := scraper.NewRSSFetcher(&http.Client{
		Timeout: config.GetEnvDuration("FEED_TIMEOUT", 10*time.Second),
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	})

	quotes := market.NewClient(market.Config{
		BaseURL:           os.Getenv("MARKET_API_URL"),
		APIKey:            os.Getenv("MARKET_API_KEY"),
		Timeout:           config.GetEnvDuration("MARKET_TIMEOUT", 10*time.Second),
		RequestsPerSecond: 2,
	})
	if !quotes.Enabled() {
		logger.Info("market data disabled, MARKET_API_URL not set")
	}

	generator := newGenerator(logger, settingsSvc)
	mailers := buildMailers(logger)

	pipelineSvc := pipeline.NewService(
		newsletterRepo,
		articleRepo,
		runRepo,
		fetcher,
		quotes,
		generator,
		mailers,
		settingsSvc,
		pipeline.Config{
			RunDeadline: config.GetEnvDuration("RUN_DEADLINE", 8*time.Minute),
			FromAddress: fromAddress(),
		},
		logger,
	)

	sched := scheduler.New(newsletterRepo, runRepo, pipelineSvc, scheduler.Config{
		RetentionDays: config.GetEnvInt("RUN_RETENTION_DAYS", 30),
	}, logger)

	srv := &handler.Server{
		Newsletters: newsletterRepo,
		Articles:    articleRepo,
		Runs:        runRepo,
		Settings:    settingsSvc,
		Pipeline:    pipelineSvc,
		Fetcher:     fetcher,
		Ring:        ring,
		Logger:      logger,
		ReloadSchedule: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sched.Reload(ctx)
		},
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := sched.Reload(startCtx); err != nil {
		logger.Error("initial schedule load failed", slog.Any("error", err))
	}
	startCancel()
	sched.Start()
	defer sched.Stop()
	srv.SetReady(true)

	addr := fmt.Sprintf(":%d", config.GetEnvInt("PORT", 8080))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(os.Getenv("ALLOWED_ORIGIN")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server started", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.Any("error", err))
	}
}

// newGenerator builds the cascade. A CASCADE_CONFIG file pins the pipeline;
// without it the stages are derived from the stored model settings on each
// run, so admin edits take effect without a restart.
func newGenerator(logger *slog.Logger, settingsSvc *settings.Service) pipeline.ReportGenerator {
	var providers []digest.Provider
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: key}))
		logger.Info("openai provider enabled")
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, llm.NewAnthropicProvider(key))
		logger.Info("anthropic provider enabled")
	}
	if len(providers) == 0 {
		logger.Warn("no LLM provider keys configured, every run will degrade to headlines")
	}

	attemptTimeout := config.GetEnvDuration("AI_ATTEMPT_TIMEOUT", 60*time.Second)

	if path := os.Getenv("CASCADE_CONFIG"); path != "" {
		cfg, err := digest.LoadPipelineConfig(path)
		if err != nil {
			logger.Error("failed to load cascade config", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("cascade pipeline loaded from file",
			slog.String("path", path),
			slog.Int("stages", len(cfg.Pipeline)))
		return &fixedGenerator{cascade: digest.NewCascade(providers, cfg.Pipeline, attemptTimeout)}
	}

	return &settingsGenerator{
		providers:      providers,
		settings:       settingsSvc,
		attemptTimeout: attemptTimeout,
	}
}

// fixedGenerator runs a file-configured cascade.
type fixedGenerator struct {
	cascade *digest.Cascade
}

func (g *fixedGenerator) Generate(ctx context.Context, prompt digest.Prompt, items []selection.Scored, events digest.EventLogger) (digest.Outcome, error) {
	return g.cascade.Generate(ctx, prompt, items, events)
}

// settingsGenerator rebuilds the cascade stages from stored settings per run.
type settingsGenerator struct {
	providers      []digest.Provider
	settings       *settings.Service
	attemptTimeout time.Duration
}

func (g *settingsGenerator) Generate(ctx context.Context, prompt digest.Prompt, items []selection.Scored, events digest.EventLogger) (digest.Outcome, error) {
	loaded, err := g.settings.Load(ctx)
	if err != nil {
		loaded = settings.Defaults()
	}
	cfg := digest.PipelineFromSettings(loaded)
	cascade := digest.NewCascade(g.providers, cfg.Pipeline, g.attemptTimeout)
	return cascade.Generate(ctx, prompt, items, events)
}

// fromAddress builds the sender from FROM_EMAIL and the optional FROM_NAME
// display name.
func fromAddress() string {
	email := os.Getenv("FROM_EMAIL")
	if email == "" {
		return ""
	}
	if name := os.Getenv("FROM_NAME"); name != "" {
		return fmt.Sprintf("%s <%s>", name, email)
	}
	return email
}

// buildMailers wires delivery transports from the environment: the HTTP
// email API when EMAIL_API_URL is set, SMTP when SMTP_HOST is set. The
// first configured transport delivers.
func buildMailers(logger *slog.Logger) []mailer.Mailer {
	var mailers []mailer.Mailer
	if endpoint := os.Getenv("EMAIL_API_URL"); endpoint != "" {
		mailers = append(mailers, mailer.NewHTTPAPIMailer(mailer.HTTPAPIConfig{
			Endpoint: endpoint,
			APIKey:   os.Getenv("EMAIL_API_KEY"),
			Timeout:  config.GetEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
		}))
		logger.Info("email transport enabled", slog.String("transport", "http-api"))
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		mailers = append(mailers, mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     host,
			Port:     config.GetEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			UseTLS:   config.GetEnvBool("SMTP_TLS", false),
			Timeout:  config.GetEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
		}))
		logger.Info("email transport enabled", slog.String("transport", "smtp"))
	}
	if len(mailers) == 0 {
		logger.Warn("no email transport configured, digests will be archived but not delivered")
	}
	return mailers
}
