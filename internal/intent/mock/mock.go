// Package mock provides a test double for intent.Classifier.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearken/internal/intent"
)

// Call records one Classify invocation.
type Call struct {
	Text, Summary string
}

// Classifier returns Result (or Err) for every call.
type Classifier struct {
	mu sync.Mutex

	Result intent.Intent
	Err    error

	Calls []Call
}

// Classify records the call and returns the configured result.
func (c *Classifier) Classify(_ context.Context, text, summary string) (intent.Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{Text: text, Summary: summary})
	return c.Result, c.Err
}

// CallCount returns the number of Classify calls.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

var _ intent.Classifier = (*Classifier)(nil)
