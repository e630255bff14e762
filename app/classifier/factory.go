package classifier

import (
	"context"
	"fmt"

	"github.com/lysyi3m/rss-bouncer/app/config"
	"github.com/lysyi3m/rss-bouncer/app/feed"
)

// New builds the policy described by cfg. The returned close function
// releases the completion client, if any.
func New(ctx context.Context, cfg *config.Config, content ContentSource) (Policy, func() error, error) {
	closer := func() error { return nil }

	var semantic *Semantic
	if cfg.LLMEnabled() {
		var completer Completer
		switch cfg.LLM.Provider {
		case config.ProviderOpenAI:
			completer = NewOpenAICompleter(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		case config.ProviderGemini:
			gemini, err := NewGeminiCompleter(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
			if err != nil {
				return nil, nil, err
			}
			completer = gemini
			closer = gemini.Close
		default:
			return nil, nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
		}

		semantic = NewSemantic(completer, NewTokenizer(cfg.LLM.Model), SemanticConfig{
			ThreeWay:        cfg.ThreeWay(),
			Personas:        cfg.Filters.Personas,
			PriorityTopics:  cfg.Filters.PriorityTopics,
			SkipCriteria:    cfg.Filters.SkipCriteria,
			CollectionRules: cfg.Filters.CollectionRules,
			ContextWindow:   cfg.LLM.ContextWindow,
			Timeout:         cfg.LLMTimeout(),
		})
		if cfg.Processing.ExtractContent && content != nil {
			semantic.WithContentSource(content)
		}
	}

	var filterer *feed.Filterer
	if len(cfg.Filters.Keywords) > 0 {
		filterer = feed.NewFilterer(cfg.Filters.Keywords)
	}

	maxAge := MaxAge(cfg.Filters.MaxArticleAgeYears)

	if cfg.ThreeWay() {
		return NewThreeWay(maxAge, filterer, semantic), closer, nil
	}
	return NewTwoWay(maxAge, filterer, semantic), closer, nil
}
