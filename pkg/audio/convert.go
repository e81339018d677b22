package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter normalises chunks to mono PCM16 at [SampleRate]. It logs a
// warning the first time it sees a foreign format or a misaligned chunk.
// Create one per stream.
type FormatConverter struct {
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns c in the canonical format. Chunks that already match are
// returned unchanged. A chunk whose length is not a whole number of frames
// comes back with nil Data.
func (fc *FormatConverter) Convert(c Chunk) Chunk {
	rate := c.SampleRate
	if rate == 0 {
		rate = SampleRate
	}
	channels := max(c.Channels, 1)

	if len(c.Data)%(BytesPerSample*channels) != 0 {
		fc.warnedCorrupt.Do(func() {
			slog.Warn("audio: dropping misaligned chunk",
				"bytes", len(c.Data),
				"format", formatString(rate, channels),
			)
		})
		return Chunk{SampleRate: SampleRate, Channels: 1, At: c.At}
	}

	if rate == SampleRate && channels == 1 {
		c.SampleRate, c.Channels = SampleRate, 1
		return c
	}

	fc.warnedMismatch.Do(func() {
		slog.Warn("audio: converting stream format",
			"from", formatString(rate, channels),
			"to", formatString(SampleRate, 1),
		)
	})

	pcm := c.Data
	if channels > 1 {
		pcm = Downmix(pcm, channels)
	}
	pcm = ResampleMono16(pcm, rate, SampleRate)
	return Chunk{Data: pcm, SampleRate: SampleRate, Channels: 1, At: c.At}
}

// Downmix averages interleaved channels into mono, clamping to int16.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	samples := Int16s(pcm)
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		avg := sum / int32(channels)
		out[i] = int16(max(min(avg, 32767), -32768))
	}
	return Encode(out)
}

// ResampleMono16 resamples mono PCM16 from srcRate to dstRate by linear
// interpolation. Equal or invalid rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := Int16s(pcm)
	n := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return Encode(out)
}

func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
