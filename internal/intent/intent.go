// Package intent classifies what a relevant transcript asks of the
// assistant: a question to answer, something to remember, or neither.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// Kind is the intent class.
type Kind string

const (
	KindQuestion Kind = "question"
	KindStore    Kind = "store"
	KindCommand  Kind = "command"
	KindOther    Kind = "other"
)

// Intent is the classifier output.
type Intent struct {
	Kind       Kind
	Confidence float64

	// Importance in [0, 1] estimates how worth remembering the text is.
	Importance float64

	// Summary is a one-line restatement suitable for storage.
	Summary string
}

// Classifier classifies a transcript given the rolling conversation summary.
type Classifier interface {
	Classify(ctx context.Context, text, summary string) (Intent, error)
}

const systemPrompt = `You read one utterance captured by a personal voice assistant and decide what the user wants.

Answer with a single JSON object and nothing else:
{"intent": "question" | "store" | "command" | "other", "confidence": number 0..1,
 "importance": number 0..1, "summary": string}

"question": the user asks something the assistant should answer.
"command": the user asks the assistant to do something.
"store": a fact, plan or note the user will want remembered.
"other": none of the above.
"importance" rates how useful remembering the utterance would be, whatever the intent.
"summary" restates the utterance in one short sentence.`

// Compile-time interface assertion.
var _ Classifier = (*LLMClassifier)(nil)

// LLMClassifier is a [Classifier] backed by an [llm.Provider].
type LLMClassifier struct {
	llm llm.Provider
}

// NewLLMClassifier returns a classifier that prompts p.
func NewLLMClassifier(p llm.Provider) *LLMClassifier {
	return &LLMClassifier{llm: p}
}

type llmResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Importance float64 `json:"importance"`
	Summary    string  `json:"summary"`
}

// Classify prompts the model. Unknown intents map to KindOther.
func (c *LLMClassifier) Classify(ctx context.Context, text, summary string) (Intent, error) {
	user := fmt.Sprintf("Utterance: %q", text)
	if summary != "" {
		user += "\nConversation so far: " + summary
	}
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  0.1,
		MaxTokens:    200,
		JSON:         true,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
	})
	if err != nil {
		return Intent{}, fmt.Errorf("intent: classify: %w", err)
	}

	var r llmResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFence(resp.Content)), &r); err != nil {
		return Intent{}, fmt.Errorf("intent: parse: %w", err)
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(r.Intent)))
	switch kind {
	case KindQuestion, KindStore, KindCommand:
	default:
		kind = KindOther
	}
	return Intent{
		Kind:       kind,
		Confidence: max(0, min(r.Confidence, 1)),
		Importance: max(0, min(r.Importance, 1)),
		Summary:    strings.TrimSpace(r.Summary),
	}, nil
}
