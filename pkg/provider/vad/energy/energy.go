// Package energy implements a VAD engine that gates on RMS energy with a
// silence hangover. It needs no model files and is the default engine.
package energy

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/vad"
)

const (
	defaultThreshold = 0.01
	defaultHangover  = 700 * time.Millisecond
)

// Engine creates energy-based detectors.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewDetector validates cfg and returns a fresh detector.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("energy vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.EnergyThreshold < 0 || cfg.EnergyThreshold >= 1 {
		return nil, errors.New("energy vad: energy threshold must be in [0, 1)")
	}
	if cfg.EnergyThreshold == 0 {
		cfg.EnergyThreshold = defaultThreshold
	}
	if cfg.Hangover <= 0 {
		cfg.Hangover = defaultHangover
	}
	return &Detector{cfg: cfg}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Detector tracks speech state for one stream.
type Detector struct {
	cfg vad.Config

	inSpeech bool
	silence  time.Duration
	ended    bool
}

// Analyze classifies chunk by its RMS energy relative to the threshold.
func (d *Detector) Analyze(chunk []byte) (vad.Result, error) {
	if len(chunk)%audio.BytesPerSample != 0 {
		return vad.Result{}, fmt.Errorf("energy vad: odd chunk length %d", len(chunk))
	}
	rms := audio.PCMRMS(chunk)
	speech := rms >= d.cfg.EnergyThreshold

	switch {
	case speech:
		d.inSpeech = true
		d.ended = false
		d.silence = 0
	case d.inSpeech:
		d.silence += audio.DurationOf(len(chunk), d.cfg.SampleRate)
		if d.silence >= d.cfg.Hangover {
			d.inSpeech = false
			d.ended = true
		}
	}

	return vad.Result{
		IsSpeech:    speech,
		Confidence:  confidence(rms, d.cfg.EnergyThreshold),
		EnergyLevel: rms,
	}, nil
}

// HasSpeechEnded reports a pending end-of-speech. The flag stays set until
// speech resumes or Reset is called.
func (d *Detector) HasSpeechEnded() bool { return d.ended }

// Reset clears speech and hangover state.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.ended = false
	d.silence = 0
}

var _ vad.Detector = (*Detector)(nil)

// confidence maps the distance from the threshold onto [0.5, 1]: a chunk
// right at the threshold is a coin toss, one far from it is certain.
func confidence(rms, threshold float64) float64 {
	if threshold <= 0 {
		return 1
	}
	ratio := rms / threshold
	if ratio < 1 {
		ratio = 1 / max(ratio, 1e-9)
	}
	c := 0.5 + 0.5*(1-1/ratio)
	return min(c, 1)
}
