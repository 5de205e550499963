package digest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"marketbrief/internal/pkg/settings"
)

// PipelineConfig is the YAML cascade definition.
//
// Example:
//
//	pipeline:
//	  - provider: openai
//	    model: gpt-5-mini
//	    reasoning_effort: medium
//	    max_output_tokens: 4000
//	  - provider: anthropic
//	    model: claude-sonnet-4-5
//	    max_output_tokens: 4000
type PipelineConfig struct {
	Pipeline []Attempt `yaml:"pipeline"`
}

// LoadPipelineConfig reads the cascade definition from the YAML file at
// path. Empty pipelines are rejected.
func LoadPipelineConfig(path string) (PipelineConfig, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("read cascade config: %w", err)
	}
	var cfg PipelineConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("parse cascade config: %w", err)
	}
	if len(cfg.Pipeline) == 0 {
		return PipelineConfig{}, fmt.Errorf("cascade config has no pipeline stages")
	}
	for i, attempt := range cfg.Pipeline {
		if attempt.ProviderID == "" || attempt.ModelID == "" {
			return PipelineConfig{}, fmt.Errorf("cascade stage %d missing provider or model", i)
		}
	}
	return cfg, nil
}

// PipelineFromSettings derives a two-stage cascade from the stored settings
// when no YAML file is configured. Model IDs are routed to a provider by
// naming convention: claude models go to anthropic, everything else to
// openai.
func PipelineFromSettings(s settings.Settings) PipelineConfig {
	stages := make([]Attempt, 0, 2)
	for _, model := range []string{s.PrimaryModel, s.SecondaryModel} {
		if model == "" {
			continue
		}
		stages = append(stages, Attempt{
			ProviderID:      providerForModel(model),
			ModelID:         model,
			ReasoningEffort: s.ReasoningLevel,
			MaxOutputTokens: 4000,
		})
	}
	return PipelineConfig{Pipeline: stages}
}

func providerForModel(model string) string {
	if len(model) >= 6 && model[:6] == "claude" {
		return "anthropic"
	}
	return "openai"
}
