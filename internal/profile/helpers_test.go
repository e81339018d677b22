package profile_test

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hearken/internal/profile"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/vecmath"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func randomUnit(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return vecmath.Normalize(v)
}

// near returns a unit vector around base with per-component gaussian noise.
func near(r *rand.Rand, base []float32, sigma float64) []float32 {
	v := make([]float32, len(base))
	for i := range v {
		v[i] = base[i] + float32(sigma*r.NormFloat64())
	}
	return vecmath.Normalize(v)
}

// speech returns d of PCM16 alternating 25ms of a loud tone with 25ms of a
// quiet one: high SNR, steady energy, no clipping.
func speech(d time.Duration) audio.Segment {
	n := int(d * audio.SampleRate / time.Second)
	frame := audio.SampleRate / 40
	samples := make([]int16, n)
	for i := range samples {
		amp := 8000.0
		if (i/frame)%2 == 1 {
			amp = 100
		}
		samples[i] = int16(amp * math.Sin(2*math.Pi*220*float64(i)/audio.SampleRate))
	}
	pcm := audio.Encode(samples)
	return audio.Segment{
		ID:         "seg",
		Data:       pcm,
		SampleRate: audio.SampleRate,
		Duration:   audio.DurationOf(len(pcm), audio.SampleRate),
	}
}

type fixture struct {
	store   *profile.MemStore
	learner *profile.Learner
	clock   *clock
	profile *profile.Profile
	base    []float32
	rng     *rand.Rand
	sigma   float64
}

// newFixture enrolls a user with 12 baseline samples clustered around a
// random voice.
func newFixture(t *testing.T, dim int, cfg profile.Config) *fixture {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, uint64(dim)))
	// Noise chosen so pairwise similarity sits near 0.9.
	sigma := 0.33 / math.Sqrt(float64(dim))
	base := randomUnit(rng, dim)

	clk := newClock()
	store := profile.NewMemStore()
	l := profile.NewLearner(store, cfg, profile.WithClock(clk.Now))

	var samples []profile.EnrollmentSample
	for range 12 {
		samples = append(samples, profile.EnrollmentSample{Embedding: near(rng, base, sigma), Quality: 0.8})
	}
	p, err := l.Enroll(context.Background(), "user-1", samples)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	return &fixture{store: store, learner: l, clock: clk, profile: p, base: base, rng: rng, sigma: sigma}
}

func (f *fixture) submission(sim float64) profile.Submission {
	return profile.Submission{
		UserID:     "user-1",
		Embedding:  near(f.rng, f.base, f.sigma),
		Similarity: sim,
		Segment:    speech(2 * time.Second),
	}
}

func (f *fixture) activeAdaptive(t *testing.T) []profile.Sample {
	t.Helper()
	all, err := f.store.Samples(context.Background(), f.profile.ID, true)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	var out []profile.Sample
	for _, s := range all {
		if s.Source == profile.SourceAdaptive {
			out = append(out, s)
		}
	}
	return out
}

func (f *fixture) current(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := f.store.Profile(context.Background(), f.profile.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	return p
}
