// Package pipeline orchestrates a single newsletter run: fetch, select,
// quote, generate, render, deliver, archive. Runs for the same newsletter
// are serialized; overlapping triggers are coalesced.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/observability/logging"
	"marketbrief/internal/repository"
	"marketbrief/internal/resilience/retry"
)

// recorder writes run events twice: structured process logs and the
// append-only run_logs table. Messages are redacted before they leave the
// process.
type recorder struct {
	runID  string
	runs   repository.RunRepository
	logger *slog.Logger
}

func newRecorder(runID string, runs repository.RunRepository, logger *slog.Logger) *recorder {
	return &recorder{
		runID:  runID,
		runs:   runs,
		logger: logger.With(slog.String("run_id", runID)),
	}
}

// Log records one run event at the given level.
func (r *recorder) Log(level entity.LogLevel, message string, fields map[string]any) {
	message = logging.Redact(message)

	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	switch level {
	case entity.LogLevelError:
		r.logger.Error(message, args...)
	case entity.LogLevelWarn:
		r.logger.Warn(message, args...)
	default:
		r.logger.Info(message, args...)
	}

	contextJSON := ""
	if len(fields) > 0 {
		if raw, err := json.Marshal(fields); err == nil {
			contextJSON = logging.Redact(string(raw))
		}
	}

	entry := &entity.RunLogEntry{
		RunID:       r.runID,
		TS:          time.Now().UTC(),
		Level:       level,
		Message:     message,
		ContextJSON: contextJSON,
	}

	// Run logs survive cancellation; losing one line is preferable to losing
	// the run, so append failures are logged and swallowed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 5*time.Second)
	defer cancel()
	err := retry.WithBackoff(ctx, retry.DBConfig(), func() error {
		return r.runs.AppendLog(ctx, entry)
	})
	if err != nil {
		r.logger.Error("failed to append run log", slog.Any("error", err))
	}
}

// Event implements digest.EventLogger over the run log.
func (r *recorder) Event(level, event string, fields map[string]any) {
	r.Log(entity.LogLevel(level), event, fields)
}
