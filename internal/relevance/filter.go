package relevance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config holds the Stage-1 limits and the Stage-2 timeout.
type Config struct {
	// MinChars is the shortest normalized text that is not "too short".
	MinChars int

	// MaxSymbolChars bounds the symbols/digits-only rule.
	MaxSymbolChars int

	RepetitionWindow time.Duration
	RepetitionCount  int

	SelfTalkMaxWords int

	// Stage2Timeout bounds the classifier call. Zero means no extra bound.
	Stage2Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinChars <= 0 {
		c.MinChars = 2
	}
	if c.MaxSymbolChars <= 0 {
		c.MaxSymbolChars = 16
	}
	if c.RepetitionWindow <= 0 {
		c.RepetitionWindow = 60 * time.Second
	}
	if c.RepetitionCount <= 0 {
		c.RepetitionCount = 3
	}
	if c.SelfTalkMaxWords <= 0 {
		c.SelfTalkMaxWords = 5
	}
	return c
}

// Option configures a [Filter].
type Option func(*Filter)

// WithWakeWords enables the wake-word-only rule.
func WithWakeWords(w WakeWords) Option {
	return func(f *Filter) { f.wake = w }
}

// Filter runs both stages. Safe for concurrent use.
type Filter struct {
	classifier Classifier
	wake       WakeWords
	cfg        Config
}

// NewFilter returns a filter. A nil classifier makes every deferred
// transcript fail closed.
func NewFilter(classifier Classifier, cfg Config, opts ...Option) *Filter {
	f := &Filter{classifier: classifier, cfg: cfg.withDefaults()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Stage1 runs the local rules. resolved is false when no rule matched or
// the match is below the sensitivity threshold; the tentative result is
// still returned for tracing.
func (f *Filter) Stage1(text string, rc Context, prefs Preferences) (res Result, resolved bool) {
	in := newInput(text, rc, prefs, f.wake, f.cfg)
	for _, r := range stage1 {
		got, ok := r.match(in)
		if !ok {
			continue
		}
		got.Rule = r.name
		return got, got.Confidence >= prefs.Threshold()
	}
	return Result{Stage: 1, Reason: "no local rule matched"}, false
}

// Evaluate classifies text, escalating to Stage 2 when Stage 1 defers.
func (f *Filter) Evaluate(ctx context.Context, text string, rc Context, prefs Preferences) Result {
	if res, ok := f.Stage1(text, rc, prefs); ok {
		return res
	}
	return f.Stage2(ctx, text, rc, prefs)
}

// Stage2 calls the classifier. It never returns discard for a confidence
// below MinStage2Discard, except as the fail-closed fallback.
func (f *Filter) Stage2(ctx context.Context, text string, rc Context, prefs Preferences) Result {
	if f.classifier == nil {
		return failClosed("no stage-2 classifier configured")
	}
	if f.cfg.Stage2Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Stage2Timeout)
		defer cancel()
	}

	c, err := f.classifier.Classify(ctx, Request{Transcript: text, Context: rc})
	if err != nil {
		slog.Warn("relevance: stage-2 classifier failed, discarding", "err", err)
		return failClosed("classifier failed: " + err.Error())
	}
	if !c.Action.Valid() {
		slog.Warn("relevance: stage-2 returned unknown action, discarding", "action", c.Action)
		return failClosed(fmt.Sprintf("classifier returned unknown action %q", c.Action))
	}

	res := Result{
		Action:              EnforceDiscardFloor(c, prefs),
		Category:            c.Category,
		Confidence:          c.Confidence,
		ContextualRelevance: c.ContextualRelevance,
		Stage:               2,
		Reason:              fmt.Sprintf("classifier: %s (%.2f)", c.Category, c.Confidence),
	}
	if res.Action != c.Action {
		res.Reason += fmt.Sprintf("; low-confidence %s downgraded to %s", c.Action, res.Action)
	}
	return res
}

// EnforceDiscardFloor applies the rule that a classification under
// MinStage2Discard never discards: it becomes ask_user when the user wants
// to be asked, else store_minimal.
func EnforceDiscardFloor(c Classification, prefs Preferences) Action {
	if c.Action != ActionDiscard || c.Confidence >= MinStage2Discard {
		return c.Action
	}
	if prefs.AskOnUncertain {
		return ActionAskUser
	}
	return ActionStoreMinimal
}

func failClosed(reason string) Result {
	return Result{
		Action:   ActionDiscard,
		Category: CategoryClassifierFail,
		Stage:    2,
		Reason:   reason,
		Fallback: true,
	}
}
