// Package audio holds the PCM primitives shared by the listening pipeline:
// the fixed-capacity ring buffer, the speech-segment accumulator and the
// helpers that turn raw little-endian PCM16 into samples, energy figures and
// WAV containers.
//
// All audio inside the pipeline is mono PCM16 at 16 kHz. Chunks in other
// formats must pass through a [FormatConverter] before they are ingested.
package audio

import (
	"time"
)

const (
	// SampleRate is the pipeline's canonical sample rate in Hz.
	SampleRate = 16000

	// BytesPerSample is the width of one PCM16 sample.
	BytesPerSample = 2
)

// Chunk is one ordered, timestamped piece of the incoming stream.
type Chunk struct {
	// Data is raw little-endian PCM16.
	Data []byte

	// SampleRate in Hz. Zero means [SampleRate].
	SampleRate int

	// Channels: zero or one for mono.
	Channels int

	// At is the capture time of the first sample.
	At time.Time
}

// Segment is a contiguous stretch of speech handed to the decision pipeline.
type Segment struct {
	// ID is unique per segment and correlates every trace event it produces.
	ID string

	// Data is mono PCM16 at SampleRate.
	Data []byte

	SampleRate int

	// Duration is derived from len(Data) and SampleRate.
	Duration time.Duration

	// ArrivedAt is the capture time of the segment's first chunk.
	ArrivedAt time.Time
}

// DurationOf returns the playback duration of n bytes of mono PCM16 at rate.
func DurationOf(n, rate int) time.Duration {
	if rate <= 0 {
		rate = SampleRate
	}
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// BytesFor returns the number of mono PCM16 bytes that cover d at rate.
// The result is always sample aligned.
func BytesFor(d time.Duration, rate int) int {
	if rate <= 0 {
		rate = SampleRate
	}
	samples := int(d * time.Duration(rate) / time.Second)
	return samples * BytesPerSample
}
