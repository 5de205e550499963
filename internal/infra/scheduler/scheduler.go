// Package scheduler materializes newsletter trigger times into cron jobs.
// Each (newsletter, time-of-day) pair is one logical job evaluated in the
// newsletter's own timezone; DST shifts are delegated to the timezone
// database via the cron library's location handling.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/repository"
	"marketbrief/internal/usecase/pipeline"
)

// Runner triggers one pipeline run. Satisfied by *pipeline.Service.
type Runner interface {
	Run(ctx context.Context, newsletterID int64) (pipeline.RunResult, error)
}

// Config holds scheduler options.
type Config struct {
	// RetentionDays bounds the run archive; older runs are deleted by the
	// daily maintenance job. Zero disables cleanup.
	RetentionDays int
}

// Scheduler owns the cron instance and keeps it in sync with the stored
// newsletters.
type Scheduler struct {
	newsletters repository.NewsletterRepository
	runs        repository.RunRepository
	runner      Runner
	logger      *slog.Logger
	cfg         Config

	mu      sync.Mutex
	cron    *cron.Cron
	entries []cron.EntryID
	started bool
}

// New creates a scheduler. Call Reload to register jobs, then Start.
func New(newsletters repository.NewsletterRepository, runs repository.RunRepository, runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		newsletters: newsletters,
		runs:        runs,
		runner:      runner,
		logger:      logger,
		cfg:         cfg,
		cron:        cron.New(),
	}
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.registerMaintenance()
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.entries)))
}

// Stop halts job dispatch and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.started = false
}

// Reload re-materializes the job set from the active newsletters. Admin
// mutations call this so schedule or timezone edits take effect without a
// restart.
func (s *Scheduler) Reload(ctx context.Context) error {
	newsletters, err := s.newsletters.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active newsletters: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = s.entries[:0]

	for _, n := range newsletters {
		for _, hhmm := range n.ScheduleTimes {
			spec, err := cronSpec(hhmm, n.Timezone)
			if err != nil {
				s.logger.Warn("skipping invalid schedule entry",
					slog.String("newsletter", n.Slug),
					slog.String("time", hhmm),
					slog.Any("error", err))
				continue
			}
			newsletterID := n.ID
			slug := n.Slug
			entryID, err := s.cron.AddFunc(spec, func() {
				s.fire(newsletterID, slug)
			})
			if err != nil {
				s.logger.Warn("failed to register schedule entry",
					slog.String("newsletter", slug),
					slog.String("spec", spec),
					slog.Any("error", err))
				continue
			}
			s.entries = append(s.entries, entryID)
		}
	}

	s.logger.Info("scheduler reloaded",
		slog.Int("newsletters", len(newsletters)),
		slog.Int("jobs", len(s.entries)))
	return nil
}

// cronSpec renders HH:MM in tz as a cron line. The CRON_TZ prefix makes the
// library resolve each fire in the newsletter's own zone.
func cronSpec(hhmm, timezone string) (string, error) {
	if err := entity.ValidateScheduleTime(hhmm); err != nil {
		return "", err
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	t, _ := time.Parse("15:04", hhmm)
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", timezone, t.Minute(), t.Hour()), nil
}

// fire dispatches one pipeline run. Overlapping fires for the same
// newsletter are coalesced by the pipeline's per-newsletter serialization.
func (s *Scheduler) fire(newsletterID int64, slug string) {
	result, err := s.runner.Run(context.Background(), newsletterID)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			s.logger.Info("schedule fire coalesced, run already in flight",
				slog.String("newsletter", slug))
			return
		}
		s.logger.Error("scheduled run failed to start",
			slog.String("newsletter", slug),
			slog.Any("error", err))
		return
	}
	s.logger.Info("scheduled run finished",
		slog.String("newsletter", slug),
		slog.String("run_id", result.RunID),
		slog.String("status", string(result.Status)))
}

// registerMaintenance adds the nightly retention job.
func (s *Scheduler) registerMaintenance() {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	_, err := s.cron.AddFunc("17 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
		deleted, err := s.runs.DeleteRunsBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error("run retention cleanup failed", slog.Any("error", err))
			return
		}
		s.logger.Info("run retention cleanup",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	})
	if err != nil {
		s.logger.Error("failed to register retention job", slog.Any("error", err))
	}
}
