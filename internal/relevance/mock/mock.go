// Package mock provides a test double for relevance.Classifier.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearken/internal/relevance"
)

// Classifier returns Result (or Err) for every call and records requests.
type Classifier struct {
	mu sync.Mutex

	Result relevance.Classification
	Err    error

	Requests []relevance.Request
}

// Classify records req and returns the configured result.
func (c *Classifier) Classify(ctx context.Context, req relevance.Request) (relevance.Classification, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	res, err := c.Result, c.Err
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return relevance.Classification{}, err
	}
	return res, err
}

// CallCount returns the number of Classify calls.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

var _ relevance.Classifier = (*Classifier)(nil)
