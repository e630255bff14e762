package config

import (
	"github.com/lysyi3m/rss-bouncer/app/feed"
)

const (
	PolicyTwoWay   = "two_way"
	PolicyThreeWay = "three_way"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the pipeline configuration read from the YAML file.
type Config struct {
	Feeds      []string         `yaml:"feeds"`
	Raindrop   RaindropConfig   `yaml:"raindrop"`
	Filters    FiltersConfig    `yaml:"filters"`
	LLM        LLMConfig        `yaml:"llm"`
	Processing ProcessingConfig `yaml:"processing"`
}

type RaindropConfig struct {
	Token       string           `yaml:"token"`
	BaseURL     string           `yaml:"base_url"`
	Collections map[string]int64 `yaml:"collections"` // disposition -> collection id
	SaveSkipped *bool            `yaml:"save_skipped"`
}

type FiltersConfig struct {
	Policy             string              `yaml:"policy"`
	MaxArticleAgeYears float64             `yaml:"max_article_age_years"`
	Personas           []string            `yaml:"personas"`
	PriorityTopics     []string            `yaml:"priority_topics"`
	SkipCriteria       []string            `yaml:"skip_criteria"`
	CollectionRules    map[string][]string `yaml:"collection_rules"`
	Keywords           []feed.Filter       `yaml:"keywords"`
}

type LLMConfig struct {
	Provider      string `yaml:"provider"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	ContextWindow int    `yaml:"context_window"` // tokens
	Timeout       int    `yaml:"timeout"`        // seconds
}

type ProcessingConfig struct {
	BatchSize      int  `yaml:"batch_size"`
	Timeout        int  `yaml:"timeout"` // seconds
	ExtractContent bool `yaml:"extract_content"`
}

// Secrets come from the environment or flags and fill in whatever the file
// leaves empty.
type Secrets struct {
	RaindropToken string
	OpenAIKey     string
	GeminiKey     string
}
