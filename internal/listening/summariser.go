package listening

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when folding old
// context entries into the rolling summary.
const summarisationPrompt = `You maintain a running summary of what one person has said aloud today.
You get the current summary and some newer utterances. Return an updated summary in plain text.
Keep facts, plans, names, times and open questions. Drop filler and chit-chat.
Stay under 120 words.`

// Summariser folds old utterances into the rolling summary.
type Summariser interface {
	// Summarise returns a new summary covering previous and texts.
	Summarise(ctx context.Context, previous string, texts []string) (string, error)
}

// LLMSummariser uses an LLM provider to summarise.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

func (s *LLMSummariser) Summarise(ctx context.Context, previous string, texts []string) (string, error) {
	if len(texts) == 0 {
		return previous, nil
	}

	var sb strings.Builder
	if previous != "" {
		fmt.Fprintf(&sb, "Current summary: %s\n\n", previous)
	}
	sb.WriteString("Newer utterances:\n")
	for _, t := range texts {
		fmt.Fprintf(&sb, "- %s\n", t)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("listening: summarise: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

var _ Summariser = (*LLMSummariser)(nil)
