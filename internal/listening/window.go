package listening

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hearken/internal/relevance"
)

// Entry is one transcript held in the window.
type Entry struct {
	Text   string
	At     time.Time
	Tokens int
}

// WindowConfig configures a [ContextWindow].
type WindowConfig struct {
	// MaxTokens bounds the entries plus the summary.
	MaxTokens int

	// MaxAge bounds how long an entry stays verbatim.
	MaxAge time.Duration

	// Counter sizes entries. Defaults to [HeuristicCounter].
	Counter TokenCounter

	// Summariser folds evicted entries into the summary. When nil, or when
	// it fails, evicted entries are appended to the summary verbatim and the
	// summary is trimmed from the front to a quarter of MaxTokens.
	Summariser Summariser
}

// ContextWindow is the rolling per-session context: recent transcripts
// verbatim and everything older as a summary. When the budget or the age
// bound is exceeded the oldest half of the entries is summarised, never
// simply dropped.
//
// All methods are safe for concurrent use.
type ContextWindow struct {
	cfg WindowConfig

	// appendMu serialises Append so that only one compaction runs at a time.
	appendMu sync.Mutex

	mu            sync.Mutex
	entries       []Entry
	summary       string
	summaryTokens int
	tokens        int
	appended      int
}

// NewContextWindow returns an empty window.
func NewContextWindow(cfg WindowConfig) *ContextWindow {
	if cfg.Counter == nil {
		cfg.Counter = HeuristicCounter{}
	}
	return &ContextWindow{cfg: cfg}
}

// Append adds text and compacts the window if needed. A summariser error is
// returned after the verbatim fallback has been applied, so the window is
// always within bounds when Append returns.
func (w *ContextWindow) Append(ctx context.Context, text string, at time.Time) error {
	w.appendMu.Lock()
	defer w.appendMu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	e := Entry{Text: text, At: at, Tokens: w.cfg.Counter.Count(text)}
	w.entries = append(w.entries, e)
	w.tokens += e.Tokens
	w.appended++

	var firstErr error
	for {
		n := w.evictable(at)
		if n == 0 {
			return firstErr
		}
		if err := w.compact(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
}

// evictable returns how many of the oldest entries must be summarised. Must
// be called with w.mu held.
func (w *ContextWindow) evictable(now time.Time) int {
	expired := 0
	if w.cfg.MaxAge > 0 {
		for _, e := range w.entries {
			if now.Sub(e.At) <= w.cfg.MaxAge {
				break
			}
			expired++
		}
	}
	over := w.cfg.MaxTokens > 0 && w.tokens+w.summaryTokens > w.cfg.MaxTokens && len(w.entries) > 1
	if !over {
		return expired
	}
	return max(expired, len(w.entries)/2, 1)
}

// compact summarises the oldest n entries. Must be called with w.mu held.
// The summariser runs with the lock released.
func (w *ContextWindow) compact(ctx context.Context, n int) error {
	old := make([]Entry, n)
	copy(old, w.entries[:n])
	texts := make([]string, n)
	for i, e := range old {
		texts[i] = e.Text
	}
	previous := w.summary

	var (
		summary string
		err     error
	)
	if w.cfg.Summariser != nil {
		w.mu.Unlock()
		summary, err = w.cfg.Summariser.Summarise(ctx, previous, texts)
		w.mu.Lock()
	}
	if w.cfg.Summariser == nil || err != nil {
		summary = w.verbatim(previous, texts)
	}

	// Entries appended while unlocked stay; only the summarised prefix goes.
	removed := 0
	for _, e := range old {
		removed += e.Tokens
	}
	w.entries = w.entries[n:]
	w.tokens -= removed
	w.summary = summary
	w.summaryTokens = w.cfg.Counter.Count(summary)
	return err
}

// verbatim is the summariser-free fallback.
func (w *ContextWindow) verbatim(previous string, texts []string) string {
	parts := make([]string, 0, len(texts)+1)
	if previous != "" {
		parts = append(parts, previous)
	}
	parts = append(parts, texts...)
	s := strings.Join(parts, " ")

	limit := w.cfg.MaxTokens / 4
	if limit <= 0 {
		return s
	}
	for w.cfg.Counter.Count(s) > limit {
		_, rest, ok := strings.Cut(s, " ")
		if !ok {
			break
		}
		s = rest
	}
	return s
}

// Summary returns the rolling summary.
func (w *ContextWindow) Summary() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Entries returns a copy of the verbatim entries, oldest first.
func (w *ContextWindow) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// History returns the verbatim entries in the shape the relevance filter
// expects.
func (w *ContextWindow) History() []relevance.Utterance {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]relevance.Utterance, len(w.entries))
	for i, e := range w.entries {
		out[i] = relevance.Utterance{Text: e.Text, At: e.At}
	}
	return out
}

// Last returns the newest entry.
func (w *ContextWindow) Last() (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.entries) == 0 {
		return Entry{}, false
	}
	return w.entries[len(w.entries)-1], true
}

// Tokens returns the tokens held by entries and summary.
func (w *ContextWindow) Tokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokens + w.summaryTokens
}

// Appended returns how many transcripts were ever appended.
func (w *ContextWindow) Appended() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appended
}

// Reset clears entries and summary.
func (w *ContextWindow) Reset() {
	w.appendMu.Lock()
	defer w.appendMu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
	w.summary = ""
	w.summaryTokens = 0
	w.tokens = 0
	w.appended = 0
}
