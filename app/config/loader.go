package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/lysyi3m/rss-bouncer/app/feed"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize      = 5
	DefaultTimeout        = 30
	DefaultMaxAgeYears    = 5
	DefaultContextWindow  = 128000
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultRaindropAPIURL = "https://api.raindrop.io/rest/v1"
)

// Load reads, completes and validates the configuration at path. Any error
// is fatal to the caller: nothing can be filed safely without a valid config.
func Load(path string, secrets Secrets) (*Config, error) {
	config, err := parseConfig(path)
	if err != nil {
		return nil, err
	}

	applySecrets(config, secrets)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	slog.Debug("Configuration loaded",
		"path", path,
		"feeds", len(config.Feeds),
		"policy", config.Filters.Policy,
		"llm", config.LLM.Provider,
		"batch_size", config.Processing.BatchSize)

	return config, nil
}

func parseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	return &config, nil
}

func setDefaults(config *Config) {
	if config.Raindrop.BaseURL == "" {
		config.Raindrop.BaseURL = DefaultRaindropAPIURL
	}
	if config.Raindrop.SaveSkipped == nil {
		saveSkipped := true
		config.Raindrop.SaveSkipped = &saveSkipped
	}
	if config.Filters.Policy == "" {
		config.Filters.Policy = PolicyTwoWay
	}
	if config.Filters.MaxArticleAgeYears == 0 {
		config.Filters.MaxArticleAgeYears = DefaultMaxAgeYears
	}
	if config.Processing.BatchSize == 0 {
		config.Processing.BatchSize = DefaultBatchSize
	}
	if config.Processing.Timeout == 0 {
		config.Processing.Timeout = DefaultTimeout
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = DefaultTimeout
	}
	if config.LLM.ContextWindow == 0 {
		config.LLM.ContextWindow = DefaultContextWindow
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case ProviderOpenAI:
			config.LLM.Model = DefaultOpenAIModel
		case ProviderGemini:
			config.LLM.Model = DefaultGeminiModel
		}
	}
}

func applySecrets(config *Config, secrets Secrets) {
	if config.Raindrop.Token == "" {
		config.Raindrop.Token = secrets.RaindropToken
	}
	if config.LLM.APIKey == "" {
		switch config.LLM.Provider {
		case ProviderOpenAI:
			config.LLM.APIKey = secrets.OpenAIKey
		case ProviderGemini:
			config.LLM.APIKey = secrets.GeminiKey
		}
	}
}

func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.Raindrop.Token == "" {
		return fmt.Errorf("raindrop token is required")
	}

	if len(config.Feeds) == 0 {
		return fmt.Errorf("at least one feed URL must be configured")
	}
	for i, url := range config.Feeds {
		if url == "" {
			return fmt.Errorf("feed URL at index %d is empty", i)
		}
	}

	validPolicies := map[string][]string{
		PolicyTwoWay:   {"read", "skip"},
		PolicyThreeWay: {"read", "maybe", "skip"},
	}
	labels, ok := validPolicies[config.Filters.Policy]
	if !ok {
		return fmt.Errorf("invalid filter policy: %s", config.Filters.Policy)
	}

	for name := range config.Raindrop.Collections {
		if !slices.Contains(labels, name) {
			return fmt.Errorf("collection '%s' is not a disposition of the %s policy", name, config.Filters.Policy)
		}
	}
	for _, label := range labels {
		if label == "skip" && !config.SaveSkipped() {
			continue
		}
		if config.Raindrop.Collections[label] <= 0 {
			return fmt.Errorf("raindrop %s collection ID is required", label)
		}
	}

	nonNegativeFields := map[string]int{
		"batch size":     config.Processing.BatchSize,
		"timeout":        config.Processing.Timeout,
		"llm timeout":    config.LLM.Timeout,
		"context window": config.LLM.ContextWindow,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	if config.Filters.MaxArticleAgeYears < 0 {
		return fmt.Errorf("max article age must be non-negative")
	}

	switch config.LLM.Provider {
	case "":
	case ProviderOpenAI, ProviderGemini:
		if config.LLM.APIKey == "" {
			return fmt.Errorf("%s API key is required when llm provider is set", config.LLM.Provider)
		}
	default:
		return fmt.Errorf("invalid llm provider: %s", config.LLM.Provider)
	}

	for i, filter := range config.Filters.Keywords {
		if !feed.ValidFilterFields[filter.Field] {
			return fmt.Errorf("invalid keyword filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("keyword filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
