package audio

import (
	"sync"
	"time"
)

// RingBuffer keeps the most recent capacity bytes of a stream. Writes past
// capacity overwrite the oldest bytes. Safe for concurrent use.
type RingBuffer struct {
	mu         sync.Mutex
	buf        []byte
	head       int // next write position
	size       int // valid bytes, <= len(buf)
	sampleRate int
}

// NewRingBuffer returns a buffer holding capacity bytes of PCM16 at
// sampleRate. A capacity below one sample is rounded up to one sample.
func NewRingBuffer(capacity, sampleRate int) *RingBuffer {
	if capacity < BytesPerSample {
		capacity = BytesPerSample
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &RingBuffer{buf: make([]byte, capacity), sampleRate: sampleRate}
}

// Cap returns the buffer capacity in bytes.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Len returns the number of valid bytes currently held.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Write appends chunk, overwriting the oldest bytes once the buffer is full.
func (r *RingBuffer) Write(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := len(r.buf)
	// Only the tail of an oversized chunk can survive.
	if len(chunk) >= c {
		copy(r.buf, chunk[len(chunk)-c:])
		r.head = 0
		r.size = c
		return
	}

	n := copy(r.buf[r.head:], chunk)
	if n < len(chunk) {
		copy(r.buf, chunk[n:])
	}
	r.head = (r.head + len(chunk)) % c
	r.size = min(r.size+len(chunk), c)
}

// Read returns a copy of the held bytes in chronological order.
func (r *RingBuffer) Read() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.size)
	if r.size < len(r.buf) {
		copy(out, r.buf[:r.size])
		return out
	}
	n := copy(out, r.buf[r.head:])
	copy(out[n:], r.buf[:r.head])
	return out
}

// Duration returns the playback time of the held bytes.
func (r *RingBuffer) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DurationOf(r.size, r.sampleRate)
}

// Clear drops all held bytes.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}
