package classifier

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// NewTokenizer returns a tiktoken tokenizer for model, or an estimating one
// when no encoding can be loaded.
func NewTokenizer(model string) Tokenizer {
	tokenizer, err := NewTiktokenTokenizer(model)
	if err != nil {
		slog.Warn("Tiktoken encoding unavailable, estimating token counts", "model", model, "error", err)
		return ApproxTokenizer{}
	}
	return tokenizer
}

type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenTokenizer{encoding: encoding}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	// A cut can split a multi-byte character across tokens.
	return strings.ToValidUTF8(t.encoding.Decode(tokens[:maxTokens]), "")
}

// ApproxTokenizer assumes four characters per token.
type ApproxTokenizer struct{}

const charsPerToken = 4

func (ApproxTokenizer) Count(text string) int {
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}

func (ApproxTokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * charsPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
