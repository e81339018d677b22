package audio

import (
	"time"

	"github.com/google/uuid"
)

// SegmentAccumulator collects the chunks of one in-progress speech segment.
// It is started when VAD flags speech and flushed on end-of-speech or when
// the maximum duration is reached. Not safe for concurrent use; the owning
// session serialises access.
type SegmentAccumulator struct {
	sampleRate int
	maxBytes   int

	data      []byte
	active    bool
	startedAt time.Time
}

// NewSegmentAccumulator returns an accumulator that reports Full once
// maxDuration of audio has been appended.
func NewSegmentAccumulator(sampleRate int, maxDuration time.Duration) *SegmentAccumulator {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &SegmentAccumulator{
		sampleRate: sampleRate,
		maxBytes:   BytesFor(maxDuration, sampleRate),
	}
}

// Active reports whether a segment is in progress.
func (a *SegmentAccumulator) Active() bool { return a.active }

// Start begins a segment at t. It is a no-op when one is already active.
func (a *SegmentAccumulator) Start(t time.Time) {
	if a.active {
		return
	}
	a.active = true
	a.startedAt = t
	a.data = a.data[:0]
}

// Append adds chunk to the active segment. Chunks appended while inactive
// are dropped.
func (a *SegmentAccumulator) Append(chunk []byte) {
	if !a.active {
		return
	}
	a.data = append(a.data, chunk...)
}

// Duration returns the length of the audio collected so far.
func (a *SegmentAccumulator) Duration() time.Duration {
	return DurationOf(len(a.data), a.sampleRate)
}

// Full reports whether the maximum segment duration has been reached.
func (a *SegmentAccumulator) Full() bool {
	return a.maxBytes > 0 && len(a.data) >= a.maxBytes
}

// Flush returns the collected segment and resets the accumulator. The
// second result is false when no segment was active.
func (a *SegmentAccumulator) Flush() (Segment, bool) {
	if !a.active {
		return Segment{}, false
	}
	data := make([]byte, len(a.data))
	copy(data, a.data)
	seg := Segment{
		ID:         uuid.NewString(),
		Data:       data,
		SampleRate: a.sampleRate,
		Duration:   DurationOf(len(data), a.sampleRate),
		ArrivedAt:  a.startedAt,
	}
	a.Clear()
	return seg, true
}

// Clear discards the active segment without returning it.
func (a *SegmentAccumulator) Clear() {
	a.active = false
	a.data = a.data[:0]
	a.startedAt = time.Time{}
}
