package listening

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter sizes text for the context window budget.
type TokenCounter interface {
	Count(text string) int
}

// charsPerToken is the heuristic ratio used when no tokenizer is
// configured. English text averages roughly 4 characters per token across
// common LLM tokenizers.
const charsPerToken = 4

// HeuristicCounter estimates one token per four bytes, and at least one
// token for non-empty text.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	n := len(text) / charsPerToken
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// TiktokenCounter counts exact tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads encoding, e.g. "cl100k_base" or "o200k_base".
// The encoding tables may be downloaded on first use.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("listening: load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

var (
	_ TokenCounter = HeuristicCounter{}
	_ TokenCounter = (*TiktokenCounter)(nil)
)
