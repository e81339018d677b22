package listening

import (
	"time"

	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// Config holds the per-session limits and timeouts.
type Config struct {
	// MinSegment drops segments shorter than this. Default 500ms.
	MinSegment time.Duration

	// MaxSegment flushes a segment that is still going. Default 15s.
	MaxSegment time.Duration

	// PreRoll is the audio kept from before speech onset and prepended to
	// each segment. Default 300ms.
	PreRoll time.Duration

	VAD vad.Config

	VerifyTimeout     time.Duration
	TranscribeTimeout time.Duration
	RelevanceTimeout  time.Duration
	IntentTimeout     time.Duration
	DispatchTimeout   time.Duration
	LearnerTimeout    time.Duration
	SummariseTimeout  time.Duration

	// NegativeThreshold splits non-target segments: below it the speaker is
	// "other", at or above it "unknown". Default 0.45.
	NegativeThreshold float64

	// QuestionThreshold is the intent confidence needed to auto-respond.
	// Default 0.7.
	QuestionThreshold float64

	// ImportanceThreshold is the importance needed to store a memory.
	// Default 0.6.
	ImportanceThreshold float64

	// ContinuationGap is the longest pause after which a transcript still
	// continues the previous one. Default 10s.
	ContinuationGap time.Duration

	// ContextTokens and ContextAge bound the rolling context window.
	// Defaults 2000 tokens and 10 minutes.
	ContextTokens int
	ContextAge    time.Duration
}

// DefaultConfig returns the defaults listed on [Config].
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MinSegment <= 0 {
		c.MinSegment = 500 * time.Millisecond
	}
	if c.MaxSegment <= 0 {
		c.MaxSegment = 15 * time.Second
	}
	if c.PreRoll <= 0 {
		c.PreRoll = 300 * time.Millisecond
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 5 * time.Second
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = 15 * time.Second
	}
	if c.RelevanceTimeout <= 0 {
		c.RelevanceTimeout = 5 * time.Second
	}
	if c.IntentTimeout <= 0 {
		c.IntentTimeout = 5 * time.Second
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.LearnerTimeout <= 0 {
		c.LearnerTimeout = 10 * time.Second
	}
	if c.SummariseTimeout <= 0 {
		c.SummariseTimeout = 10 * time.Second
	}
	if c.NegativeThreshold <= 0 {
		c.NegativeThreshold = 0.45
	}
	if c.QuestionThreshold <= 0 {
		c.QuestionThreshold = 0.7
	}
	if c.ImportanceThreshold <= 0 {
		c.ImportanceThreshold = 0.6
	}
	if c.ContinuationGap <= 0 {
		c.ContinuationGap = 10 * time.Second
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = 2000
	}
	if c.ContextAge <= 0 {
		c.ContextAge = 10 * time.Minute
	}
	return c
}
