// Package llm defines the completion interface used by the relevance and
// intent classifiers and by the context-window summariser.
//
// Every caller in this module sends a short prompt and expects one JSON or
// plain-text answer back, so the interface is a single blocking Complete.
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is the input to Complete.
type CompletionRequest struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	Messages []Message

	// Temperature; zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the reply; zero leaves the backend default.
	MaxTokens int

	// JSON asks backends that support it to constrain output to a JSON
	// object. Callers must still parse defensively.
	JSON bool
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the output of Complete.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
