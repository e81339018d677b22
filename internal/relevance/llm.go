package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

const defaultTemperature = 0.1

const systemPrompt = `You classify short transcripts captured by an always-on personal voice assistant.
Decide whether the transcript is something the user meant for the assistant or wants remembered.

Answer with a single JSON object and nothing else:
{"category": string, "confidence": number 0..1, "contextual_relevance": number 0..1,
 "action": "process" | "discard" | "ask_user" | "store_minimal"}

Use "process" for requests, questions and facts worth keeping, "discard" for noise,
media, or talk aimed at other people, "ask_user" when unsure whether the user wants
it kept, and "store_minimal" when it may matter later but needs no action now.
When the transcript continues an earlier chunk, judge the two together.`

// Compile-time interface assertion.
var _ Classifier = (*LLMClassifier)(nil)

// LLMClassifier is a Stage-2 [Classifier] backed by an [llm.Provider].
type LLMClassifier struct {
	llm         llm.Provider
	temperature float64
}

// NewLLMClassifier returns a classifier that prompts p.
func NewLLMClassifier(p llm.Provider) *LLMClassifier {
	return &LLMClassifier{llm: p, temperature: defaultTemperature}
}

type llmResponse struct {
	Category            string   `json:"category"`
	Confidence          *float64 `json:"confidence"`
	ContextualRelevance float64  `json:"contextual_relevance"`
	Action              string   `json:"action"`
}

// Classify sends the transcript and its continuity context to the model.
// Transport errors and unparsable answers are returned as errors.
func (c *LLMClassifier) Classify(ctx context.Context, req Request) (Classification, error) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		MaxTokens:    200,
		JSON:         true,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userMessage(req)}},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("relevance: classify: %w", err)
	}

	var r llmResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFence(resp.Content)), &r); err != nil {
		return Classification{}, fmt.Errorf("relevance: parse classification: %w", err)
	}
	if r.Confidence == nil {
		return Classification{}, fmt.Errorf("relevance: parse classification: missing confidence")
	}
	return Classification{
		Category:            r.Category,
		Confidence:          max(0, min(*r.Confidence, 1)),
		ContextualRelevance: max(0, min(r.ContextualRelevance, 1)),
		Action:              Action(strings.ToLower(strings.TrimSpace(r.Action))),
	}, nil
}

func userMessage(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transcript: %q\n", req.Transcript)
	rc := req.Context
	fmt.Fprintf(&sb, "Continuation of previous chunk: %t\n", rc.IsContinuation)
	if rc.PreviousText != "" {
		fmt.Fprintf(&sb, "Previous chunk: %q\n", rc.PreviousText)
	}
	if rc.Summary != "" {
		fmt.Fprintf(&sb, "Conversation so far: %s\n", rc.Summary)
	}
	fmt.Fprintf(&sb, "Chunks in this conversation: %d\n", rc.ChunkCount)
	fmt.Fprintf(&sb, "Elapsed: %s\n", rc.Elapsed.Round(time.Second))
	return sb.String()
}
