// Package mock provides test doubles for the vad package interfaces.
//
// Detector replays a scripted sequence of results; once the script is
// exhausted it keeps returning the last entry. EndAfter makes HasSpeechEnded
// report true once that many chunks have been analysed.
package mock

import (
	"sync"

	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, a new default Detector is
	// returned.
	Detector vad.Detector

	// NewDetectorErr, if non-nil, is returned by NewDetector.
	NewDetectorErr error

	// Configs records the Config of every NewDetector call.
	Configs []vad.Config
}

// NewDetector records cfg and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Detector is a scripted vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Script is consumed one entry per Analyze call.
	Script []vad.Result

	// Ended is returned by HasSpeechEnded when EndAfter is zero.
	Ended bool

	// EndAfter, when positive, makes HasSpeechEnded true once at least that
	// many chunks have been analysed since the last Reset.
	EndAfter int

	// AnalyzeErr, if non-nil, is returned by every Analyze call.
	AnalyzeErr error

	// Calls is the number of Analyze calls since the last Reset.
	Calls int

	// ResetCount is the number of Reset calls.
	ResetCount int
}

// Analyze returns the next scripted result.
func (d *Detector) Analyze(chunk []byte) (vad.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.AnalyzeErr != nil {
		return vad.Result{}, d.AnalyzeErr
	}
	if len(d.Script) == 0 {
		return vad.Result{}, nil
	}
	idx := min(d.Calls-1, len(d.Script)-1)
	return d.Script[idx], nil
}

// HasSpeechEnded reports Ended, or Calls >= EndAfter when EndAfter is set.
func (d *Detector) HasSpeechEnded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.EndAfter > 0 {
		return d.Calls >= d.EndAfter
	}
	return d.Ended
}

// Reset records the call and rewinds the script.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCount++
	d.Calls = 0
}

var _ vad.Detector = (*Detector)(nil)
