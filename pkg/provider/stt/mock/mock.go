// Package mock provides a test double for stt.Transcriber.
//
// Transcriber returns Result (or Err) for every call and records the
// segments it received. Delay simulates a slow backend and honours context
// cancellation.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every successful Transcribe call.
	Result stt.Transcript

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Delay is waited out before returning.
	Delay time.Duration

	// Segments records every segment passed to Transcribe.
	Segments []audio.Segment
}

// Transcribe records seg and returns Result, Err.
func (m *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	m.mu.Lock()
	m.Segments = append(m.Segments, seg)
	res, err, delay := m.Result, m.Err, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	return res, err
}

// CallCount returns the number of Transcribe calls.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Segments)
}

// Set replaces Result and Err under the lock.
func (m *Transcriber) Set(res stt.Transcript, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Result, m.Err = res, err
}

var _ stt.Transcriber = (*Transcriber)(nil)
