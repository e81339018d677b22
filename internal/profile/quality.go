package profile

import (
	"math"
	"slices"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
)

const (
	snrFrame         = 25 * time.Millisecond
	consistencyFrame = 500 * time.Millisecond

	// clipLevel is the absolute sample value counted as clipped.
	clipLevel = 32440 // ≈ 0.99 full scale

	// silenceRMS is the normalised RMS below which a consistency window is
	// treated as silence. Matches the default VAD energy threshold.
	silenceRMS = 0.01

	maxSNR = 100.0
)

// Quality is the acoustic assessment of one segment.
type Quality struct {
	Duration          time.Duration
	ClippingRatio     float64
	SNR               float64 // dB
	EnergyConsistency float64 // [0, 1]

	// Score is a composite in [0, 1] used to rank samples for pruning.
	Score float64
}

// AnalyzeQuality measures mono PCM16 audio at sampleRate.
//
// SNR is the ratio of the 90th to the 10th percentile of frame energy over
// 25ms frames. Energy consistency is 1 minus the coefficient of variation of
// per-0.5s RMS over non-silent windows; fewer than two such windows count as
// perfectly consistent.
func AnalyzeQuality(pcm []byte, sampleRate int) Quality {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	samples := audio.Int16s(pcm)
	q := Quality{Duration: audio.DurationOf(len(pcm), sampleRate)}
	if len(samples) == 0 {
		return q
	}

	var clipped int
	for _, s := range samples {
		if s >= clipLevel || s <= -clipLevel {
			clipped++
		}
	}
	q.ClippingRatio = float64(clipped) / float64(len(samples))
	q.SNR = snr(samples, frameLen(snrFrame, sampleRate))
	q.EnergyConsistency = consistency(samples, frameLen(consistencyFrame, sampleRate))
	q.Score = compositeScore(q)
	return q
}

func frameLen(d time.Duration, rate int) int {
	return max(int(d*time.Duration(rate)/time.Second), 1)
}

func snr(samples []int16, frame int) float64 {
	var energies []float64
	for start := 0; start+frame <= len(samples); start += frame {
		var sum float64
		for _, s := range samples[start : start+frame] {
			v := float64(s) / 32768.0
			sum += v * v
		}
		energies = append(energies, sum/float64(frame))
	}
	if len(energies) == 0 {
		return 0
	}
	slices.Sort(energies)
	noise := percentile(energies, 0.10)
	signal := percentile(energies, 0.90)
	if signal <= 0 {
		return 0
	}
	if noise <= 0 {
		return maxSNR
	}
	return min(10*math.Log10(signal/noise), maxSNR)
}

// percentile expects sorted input and uses the nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func consistency(samples []int16, window int) float64 {
	var rms []float64
	for start := 0; start < len(samples); start += window {
		end := min(start+window, len(samples))
		if r := audio.RMS(samples[start:end]); r >= silenceRMS {
			rms = append(rms, r)
		}
	}
	if len(rms) < 2 {
		return 1
	}
	var mean float64
	for _, r := range rms {
		mean += r
	}
	mean /= float64(len(rms))
	var variance float64
	for _, r := range rms {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(rms)))
	return clamp01(1 - std/mean)
}

func compositeScore(q Quality) float64 {
	snrScore := clamp01(q.SNR / 40)
	clipScore := clamp01(1 - q.ClippingRatio*50)
	return clamp01(0.4*snrScore + 0.35*q.EnergyConsistency + 0.25*clipScore)
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
