package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
feeds:
  - https://example.com/feed.xml
  - https://example.org/atom.xml

raindrop:
  token: "rd-token"
  collections:
    read: 101
    maybe: 102
    skip: 103

filters:
  policy: three_way
  max_article_age_years: 1
  personas:
    - "Backend engineer"
  priority_topics:
    - "distributed systems"
  skip_criteria:
    - "product announcements"
  collection_rules:
    read:
      - "deep technical content"
  keywords:
    - field: title
      excludes:
        - "sponsored"

llm:
  provider: openai
  api_key: "sk-test"

processing:
  batch_size: 3
  extract_content: true
`)

	config, err := Load(path, Secrets{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(config.Feeds) != 2 {
		t.Errorf("Expected 2 feeds, got %d", len(config.Feeds))
	}
	if config.Raindrop.Collections["maybe"] != 102 {
		t.Errorf("Expected maybe collection 102, got %d", config.Raindrop.Collections["maybe"])
	}
	if !config.ThreeWay() {
		t.Error("Expected three-way policy")
	}
	if config.Filters.MaxArticleAgeYears != 1 {
		t.Errorf("Expected max age 1, got %v", config.Filters.MaxArticleAgeYears)
	}
	if len(config.Filters.Keywords) != 1 || config.Filters.Keywords[0].Field != "title" {
		t.Errorf("Unexpected keyword filters: %+v", config.Filters.Keywords)
	}
	if config.LLM.Model != DefaultOpenAIModel {
		t.Errorf("Expected default model '%s', got '%s'", DefaultOpenAIModel, config.LLM.Model)
	}
	if !config.LLMEnabled() {
		t.Error("Expected LLM to be enabled")
	}
	if config.Processing.BatchSize != 3 {
		t.Errorf("Expected batch size 3, got %d", config.Processing.BatchSize)
	}
	if !config.SaveSkipped() {
		t.Error("Expected save_skipped to default to true")
	}
	if config.FetchTimeout() != 30*time.Second {
		t.Errorf("Expected fetch timeout 30s, got %v", config.FetchTimeout())
	}
}

func TestLoadAppliesDefaultsAndSecrets(t *testing.T) {
	path := writeConfig(t, `
feeds: [https://example.com/feed.xml]
raindrop:
  collections: {read: 1, skip: 2}
llm:
  provider: gemini
`)

	config, err := Load(path, Secrets{RaindropToken: "env-token", GeminiKey: "g-key", OpenAIKey: "unused"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Raindrop.Token != "env-token" {
		t.Errorf("Expected token from secrets, got '%s'", config.Raindrop.Token)
	}
	if config.LLM.APIKey != "g-key" {
		t.Errorf("Expected gemini key from secrets, got '%s'", config.LLM.APIKey)
	}
	if config.LLM.Model != DefaultGeminiModel {
		t.Errorf("Expected model '%s', got '%s'", DefaultGeminiModel, config.LLM.Model)
	}
	if config.Filters.Policy != PolicyTwoWay {
		t.Errorf("Expected default policy '%s', got '%s'", PolicyTwoWay, config.Filters.Policy)
	}
	if config.Processing.BatchSize != DefaultBatchSize {
		t.Errorf("Expected batch size %d, got %d", DefaultBatchSize, config.Processing.BatchSize)
	}
	if config.Filters.MaxArticleAgeYears != DefaultMaxAgeYears {
		t.Errorf("Expected max age %d, got %v", DefaultMaxAgeYears, config.Filters.MaxArticleAgeYears)
	}
	if config.Raindrop.BaseURL != DefaultRaindropAPIURL {
		t.Errorf("Expected raindrop URL '%s', got '%s'", DefaultRaindropAPIURL, config.Raindrop.BaseURL)
	}
}

func TestLoadFileTokenWinsOverSecret(t *testing.T) {
	path := writeConfig(t, `
feeds: [https://example.com/feed.xml]
raindrop:
  token: file-token
  collections: {read: 1, skip: 2}
`)

	config, err := Load(path, Secrets{RaindropToken: "env-token"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.Raindrop.Token != "file-token" {
		t.Errorf("Expected file token, got '%s'", config.Raindrop.Token)
	}
}

func TestLoadInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{
			name:    "missing token",
			content: "feeds: [https://a]\nraindrop:\n  collections: {read: 1, skip: 2}\n",
			errPart: "token",
		},
		{
			name:    "no feeds",
			content: "feeds: []\nraindrop:\n  token: t\n  collections: {read: 1, skip: 2}\n",
			errPart: "at least one feed",
		},
		{
			name:    "missing read collection",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {skip: 2}\n",
			errPart: "read collection",
		},
		{
			name:    "missing skip collection while saving skipped",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1}\n",
			errPart: "skip collection",
		},
		{
			name:    "three way without maybe",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1, skip: 2}\nfilters:\n  policy: three_way\n",
			errPart: "maybe collection",
		},
		{
			name:    "maybe collection under two way",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1, maybe: 3, skip: 2}\n",
			errPart: "not a disposition",
		},
		{
			name:    "unknown policy",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1, skip: 2}\nfilters:\n  policy: fancy\n",
			errPart: "invalid filter policy",
		},
		{
			name:    "provider without key",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1, skip: 2}\nllm:\n  provider: openai\n",
			errPart: "API key",
		},
		{
			name:    "bad keyword field",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1, skip: 2}\nfilters:\n  keywords:\n    - field: body\n      excludes: [x]\n",
			errPart: "invalid keyword filter field",
		},
		{
			name:    "negative batch size",
			content: "feeds: [https://a]\nraindrop:\n  token: t\n  collections: {read: 1, skip: 2}\nprocessing:\n  batch_size: -1\n",
			errPart: "batch size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), Secrets{})
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("Expected error containing '%s', got: %v", tt.errPart, err)
			}
		})
	}
}

func TestLoadSkipCollectionOptionalWhenDroppingSkipped(t *testing.T) {
	path := writeConfig(t, `
feeds: [https://example.com/feed.xml]
raindrop:
  token: t
  save_skipped: false
  collections: {read: 1}
`)

	config, err := Load(path, Secrets{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.SaveSkipped() {
		t.Error("Expected save_skipped to be false")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Secrets{}); err == nil {
		t.Error("Expected error for missing file")
	}
}
