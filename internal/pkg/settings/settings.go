// Package settings exposes the persisted (key, value) settings bag as a
// typed struct. Enum and numeric semantics are enforced on write; reads are
// permissive and fall back to defaults, so an old store never blocks a run.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/repository"
)

// Recognized setting keys. Writes of any other key are rejected; unknown keys
// already present in the store are ignored on read.
const (
	KeyDefaultTimezone       = "default_timezone"
	KeyDefaultSendTimes      = "default_send_times"
	KeyPrimaryModel          = "primary_model"
	KeySecondaryModel        = "secondary_model"
	KeyReasoningLevel        = "reasoning_level"
	KeyDefaultRecipients     = "default_recipients"
	KeyFromAddress           = "from_address"
	KeyPerSourceCap          = "per_source_cap"
	KeyMaxArticlesConsidered = "max_articles_considered"
	KeyMaxArticlesForAI      = "max_articles_for_ai"
	KeyMaxConcurrency        = "max_concurrency"
)

// Settings is the typed view of the settings bag.
type Settings struct {
	DefaultTimezone       string
	DefaultSendTimes      []string
	PrimaryModel          string
	SecondaryModel        string
	ReasoningLevel        string // low | medium | high
	DefaultRecipients     []string
	FromAddress           string
	PerSourceCap          int
	MaxArticlesConsidered int
	MaxArticlesForAI      int
	MaxConcurrency        int
}

// Defaults returns the settings used when the store has no overrides.
func Defaults() Settings {
	return Settings{
		DefaultTimezone:       "America/New_York",
		DefaultSendTimes:      []string{"06:30"},
		PrimaryModel:          "gpt-5-mini",
		SecondaryModel:        "claude-sonnet-4-5",
		ReasoningLevel:        "medium",
		DefaultRecipients:     nil,
		FromAddress:           "",
		PerSourceCap:          10,
		MaxArticlesConsidered: 200,
		MaxArticlesForAI:      25,
		MaxConcurrency:        6,
	}
}

// Service reads and writes settings through the repository.
type Service struct {
	repo repository.SettingsRepository
}

// NewService creates a settings service.
func NewService(repo repository.SettingsRepository) *Service {
	return &Service{repo: repo}
}

// Load materializes the typed settings. Malformed stored values are logged
// and replaced by defaults; loading never fails on bad data, only on store
// errors.
func (s *Service) Load(ctx context.Context) (Settings, error) {
	out := Defaults()

	raw, err := s.repo.All(ctx)
	if err != nil {
		return out, fmt.Errorf("load settings: %w", err)
	}

	for key, value := range raw {
		switch key {
		case KeyDefaultTimezone:
			if _, err := time.LoadLocation(value); err == nil {
				out.DefaultTimezone = value
			} else {
				warnIgnored(key, value)
			}
		case KeyDefaultSendTimes:
			if times, ok := parseTimeList(value); ok {
				out.DefaultSendTimes = times
			} else {
				warnIgnored(key, value)
			}
		case KeyPrimaryModel:
			out.PrimaryModel = value
		case KeySecondaryModel:
			out.SecondaryModel = value
		case KeyReasoningLevel:
			if isReasoningLevel(value) {
				out.ReasoningLevel = value
			} else {
				warnIgnored(key, value)
			}
		case KeyDefaultRecipients:
			if list, ok := parseStringList(value); ok {
				out.DefaultRecipients = list
			} else {
				warnIgnored(key, value)
			}
		case KeyFromAddress:
			out.FromAddress = value
		case KeyPerSourceCap:
			setPositiveInt(&out.PerSourceCap, key, value)
		case KeyMaxArticlesConsidered:
			setPositiveInt(&out.MaxArticlesConsidered, key, value)
		case KeyMaxArticlesForAI:
			setPositiveInt(&out.MaxArticlesForAI, key, value)
		case KeyMaxConcurrency:
			setPositiveInt(&out.MaxConcurrency, key, value)
		default:
			// Unknown keys are tolerated on read.
		}
	}

	return out, nil
}

// Set validates and persists one setting. Unknown keys and invalid values are
// rejected here, on the write path.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	return s.repo.Set(ctx, key, value)
}

// All returns the raw stored bag for the admin surface.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	return s.repo.All(ctx)
}

// Validate checks a (key, value) pair against the write-side rules.
func Validate(key, value string) error {
	switch key {
	case KeyDefaultTimezone:
		if _, err := time.LoadLocation(value); err != nil {
			return fmt.Errorf("%w: invalid timezone %q", entity.ErrValidation, value)
		}
	case KeyDefaultSendTimes:
		if _, ok := parseTimeList(value); !ok {
			return fmt.Errorf("%w: %s must be a JSON array of HH:MM strings", entity.ErrValidation, key)
		}
	case KeyReasoningLevel:
		if !isReasoningLevel(value) {
			return fmt.Errorf("%w: reasoning_level must be low, medium or high", entity.ErrValidation)
		}
	case KeyDefaultRecipients:
		if _, ok := parseStringList(value); !ok {
			return fmt.Errorf("%w: %s must be a JSON array of strings", entity.ErrValidation, key)
		}
	case KeyPerSourceCap, KeyMaxArticlesConsidered, KeyMaxArticlesForAI, KeyMaxConcurrency:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer", entity.ErrValidation, key)
		}
	case KeyPrimaryModel, KeySecondaryModel, KeyFromAddress:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s cannot be empty", entity.ErrValidation, key)
		}
	default:
		return fmt.Errorf("%w: unknown setting %q", entity.ErrValidation, key)
	}
	return nil
}

func isReasoningLevel(v string) bool {
	return v == "low" || v == "medium" || v == "high"
}

func parseStringList(value string) ([]string, bool) {
	var list []string
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return nil, false
	}
	return list, true
}

func parseTimeList(value string) ([]string, bool) {
	list, ok := parseStringList(value)
	if !ok {
		return nil, false
	}
	for _, hhmm := range list {
		if err := entity.ValidateScheduleTime(hhmm); err != nil {
			return nil, false
		}
	}
	return list, true
}

func setPositiveInt(dst *int, key, value string) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		warnIgnored(key, value)
		return
	}
	*dst = n
}

func warnIgnored(key, value string) {
	slog.Warn("ignoring invalid stored setting",
		slog.String("key", key),
		slog.String("value", value))
}
