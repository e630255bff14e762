package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/lysyi3m/rss-bouncer/app/feed"
)

const (
	// ReservedTokens is held back from the context window for instructions
	// and the completion.
	ReservedTokens = 4000

	// Temperature for classification calls.
	Temperature float32 = 0.1
)

var dispositionKeys = []string{"disposition", "status", "collection"}

type SemanticConfig struct {
	ThreeWay        bool
	Personas        []string
	PriorityTopics  []string
	SkipCriteria    []string
	CollectionRules map[string][]string
	ContextWindow   int
	Timeout         time.Duration
}

// Semantic asks a language model for a disposition. It never fails: any
// problem with the call or its answer yields the conservative default.
type Semantic struct {
	completer Completer
	tokenizer Tokenizer
	content   ContentSource
	config    SemanticConfig
	template  *template.Template
	labels    []Disposition
	fallback  Disposition
	logger    *slog.Logger
}

func NewSemantic(completer Completer, tokenizer Tokenizer, config SemanticConfig) *Semantic {
	s := &Semantic{
		completer: completer,
		tokenizer: tokenizer,
		config:    config,
		template:  twoWayTemplate,
		labels:    TwoWayLabels,
		fallback:  Skip,
		logger:    slog.Default().With("component", "semantic"),
	}

	if config.ThreeWay {
		s.template = threeWayTemplate
		s.labels = ThreeWayLabels
		s.fallback = Maybe
	}

	return s
}

// WithContentSource enables fetching page text for articles whose feed
// entry has no summary.
func (s *Semantic) WithContentSource(source ContentSource) *Semantic {
	s.content = source
	return s
}

func (s *Semantic) HasSkipCriteria() bool {
	return len(s.config.SkipCriteria) > 0
}

func (s *Semantic) Classify(ctx context.Context, item *feed.Item) Decision {
	content := s.BudgetContent(s.subject(ctx, item))
	prompt := s.RenderPrompt(content)

	s.logger.Debug("Classifying article", "link", item.Link, "prompt_tokens", s.tokenizer.Count(prompt))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	text, err := s.completer.Complete(callCtx, systemPrompt, prompt)
	if err != nil {
		s.logger.Error("Classifier call failed", "link", item.Link, "error", err)
		return s.fallbackDecision(fmt.Sprintf("classifier unavailable: %v", err))
	}

	decision, err := s.ParseResponse(text)
	if err != nil {
		s.logger.Warn("Invalid classifier response", "link", item.Link, "response", text, "error", err)
		return s.fallbackDecision(fmt.Sprintf("invalid classifier response: %v", err))
	}

	s.logger.Debug("Article classified", "link", item.Link, "disposition", decision.Disposition, "reason", decision.Reason)

	return decision
}

// RenderPrompt fills the template with content as given.
func (s *Semantic) RenderPrompt(content string) string {
	return renderTemplate(s.template, promptData{
		Personas:        s.config.Personas,
		PriorityTopics:  s.config.PriorityTopics,
		SkipCriteria:    s.config.SkipCriteria,
		CollectionRules: s.config.CollectionRules,
		Content:         content,
	})
}

// ContentBudget is the number of tokens left for article content once the
// instructions are accounted for.
func (s *Semantic) ContentBudget() int {
	fixed := s.tokenizer.Count(systemPrompt) + s.tokenizer.Count(s.RenderPrompt(""))
	return max(0, s.config.ContextWindow-ReservedTokens-fixed)
}

// BudgetContent cuts content to ContentBudget tokens. The cut ignores
// sentence boundaries.
func (s *Semantic) BudgetContent(content string) string {
	budget := s.ContentBudget()
	if s.tokenizer.Count(content) <= budget {
		return content
	}

	s.logger.Debug("Truncating article content", "budget", budget)
	return s.tokenizer.Truncate(content, budget)
}

// ParseResponse validates a model answer against the label set.
func (s *Semantic) ParseResponse(text string) (Decision, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		cleaned := strings.TrimFunc(text, func(r rune) bool {
			return unicode.IsSpace(r) || r == '\uFEFF'
		})
		if retryErr := json.Unmarshal([]byte(cleaned), &raw); retryErr != nil {
			return Decision{}, fmt.Errorf("response is not a JSON object: %w", err)
		}
	}
	if raw == nil {
		return Decision{}, fmt.Errorf("response is not a JSON object")
	}

	var value any
	for _, key := range dispositionKeys {
		if v, ok := raw[key]; ok {
			value = v
			break
		}
	}
	label, ok := value.(string)
	if !ok || strings.TrimSpace(label) == "" {
		return Decision{}, fmt.Errorf("missing disposition")
	}

	disposition := Disposition(strings.ToLower(strings.TrimSpace(label)))
	if !slices.Contains(s.labels, disposition) {
		return Decision{}, fmt.Errorf("disposition %q is not one of %v", label, s.labels)
	}

	reason, ok := raw["reason"].(string)
	if !ok || strings.TrimSpace(reason) == "" {
		return Decision{}, fmt.Errorf("missing reason")
	}

	return Decision{Disposition: disposition, Reason: strings.TrimSpace(reason)}, nil
}

func (s *Semantic) subject(ctx context.Context, item *feed.Item) string {
	summary := feed.PlainText(item.Summary)

	if summary == "" && s.content != nil && item.Link != "" {
		text, err := s.content.Run(ctx, item.Link)
		if err != nil {
			s.logger.Warn("Failed to extract article content", "link", item.Link, "error", err)
		} else {
			summary = text
		}
	}

	return fmt.Sprintf("Title: %s\nDescription: %s\n", item.Title, summary)
}

func (s *Semantic) fallbackDecision(reason string) Decision {
	return Decision{Disposition: s.fallback, Reason: reason}
}

func (s *Semantic) timeout() time.Duration {
	if s.config.Timeout <= 0 {
		return 30 * time.Second
	}
	return s.config.Timeout
}
