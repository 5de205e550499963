package repository

import "context"

// SettingsRepository stores deployment settings as (key, value) string rows.
// Typed interpretation happens in internal/pkg/settings; unknown keys read
// from the store are ignored there.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}
