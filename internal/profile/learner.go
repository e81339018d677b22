package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/vecmath"
)

// Submission is one verified segment offered to the learner.
type Submission struct {
	UserID     string
	Embedding  []float32
	Similarity float64
	Segment    audio.Segment
}

// Option configures a [Learner].
type Option func(*Learner)

// WithClock replaces time.Now. Used by tests to step through cooldowns and
// decay.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// Learner evaluates submissions against a profile and owns every profile
// mutation. Safe for concurrent use; calls for the same profile are
// serialised.
type Learner struct {
	store     Store
	cfg       Config
	now       func() time.Time
	locks     keyedMutex
	negatives *NegativeStore
}

// NewLearner returns a learner backed by store.
func NewLearner(store Store, cfg Config, opts ...Option) *Learner {
	l := &Learner{
		store: store,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.negatives = &NegativeStore{store: store, cfg: l.cfg, now: l.now}
	return l
}

// Config returns the effective configuration.
func (l *Learner) Config() Config { return l.cfg }

// Negatives returns the negative-example store used by the learner.
func (l *Learner) Negatives() *NegativeStore { return l.negatives }

// Evaluate runs the admission gates for sub. Gate failures are reported in
// the Decision; the error is non-nil only when the store fails.
func (l *Learner) Evaluate(ctx context.Context, sub Submission) (Decision, error) {
	if len(sub.Embedding) == 0 {
		return rejected("submission carries no embedding"), nil
	}
	p, err := l.store.ProfileByUser(ctx, sub.UserID)
	if errors.Is(err, ErrNotFound) {
		return rejected("no profile enrolled for user " + sub.UserID), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("profile: evaluate: %w", err)
	}

	unlock := l.locks.Lock(p.ID)
	defer unlock()

	// Re-read under the lock; a concurrent admission may have changed it.
	p, err = l.store.Profile(ctx, p.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("profile: evaluate: %w", err)
	}

	d, err := l.evaluate(ctx, p, sub)
	if err != nil {
		return Decision{}, fmt.Errorf("profile: evaluate %s: %w", p.ID, err)
	}
	slog.Info("profile: learner decision",
		"profile_id", p.ID,
		"segment_id", sub.Segment.ID,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"similarity", sub.Similarity,
	)
	return d, nil
}

func (l *Learner) evaluate(ctx context.Context, p *Profile, sub Submission) (Decision, error) {
	cfg := l.cfg
	now := l.now()

	// Gate 1.
	switch {
	case p.Enrollment != EnrollmentComplete || p.Centroid == nil:
		return rejected("profile is not enrolled"), nil
	case !p.AdaptiveEnabled:
		return rejected("adaptive learning is disabled for this profile"), nil
	case p.Frozen:
		return rejected("profile is frozen: " + p.FrozenReason), nil
	}

	// Gate 2.
	if !p.LastUpdated.IsZero() {
		if elapsed := now.Sub(p.LastUpdated); elapsed < cfg.Cooldown {
			return rejected(fmt.Sprintf("cooldown active: %s until next update allowed",
				(cfg.Cooldown - elapsed).Round(time.Second))), nil
		}
	}

	// Gate 3.
	active, err := l.store.Samples(ctx, p.ID, true)
	if err != nil {
		return Decision{}, err
	}
	if len(active) < cfg.MinBaselineSamples {
		return rejected(fmt.Sprintf("insufficient baseline: %d samples, need %d",
			len(active), cfg.MinBaselineSamples)), nil
	}

	// Gate 4.
	q := AnalyzeQuality(sub.Segment.Data, sub.Segment.SampleRate)
	if reason := l.qualityFailure(q); reason != "" {
		return rejected(reason), nil
	}

	// Gate 5, with the negative and uncertain branches.
	if sub.Similarity < cfg.AdmissionThreshold {
		if sub.Similarity < cfg.NegativeThreshold {
			return l.negatives.add(ctx, p.ID, sub.Embedding, sub.Similarity)
		}
		return Decision{
			Outcome: OutcomeIgnored,
			Reason: fmt.Sprintf("similarity %.3f in uncertain zone [%.2f, %.2f)",
				sub.Similarity, cfg.NegativeThreshold, cfg.AdmissionThreshold),
		}, nil
	}

	// Gate 6.
	median, population := crossValidate(sub.Embedding, active, p.Centroid)
	if median < cfg.MinCrossValidation {
		return rejected(fmt.Sprintf("cross-validation failed: median similarity %.3f below %.2f",
			median, cfg.MinCrossValidation)), nil
	}
	if dev := math.Abs(median - population); dev >= cfg.MaxPopulationDeviation {
		return rejected(fmt.Sprintf("cross-validation failed: deviation %.3f from population similarity %.3f exceeds %.2f",
			dev, population, cfg.MaxPopulationDeviation)), nil
	}

	return l.admit(ctx, p, active, sub, q, median, now)
}

func (l *Learner) qualityFailure(q Quality) string {
	cfg := l.cfg
	switch {
	case q.Duration < cfg.MinDuration:
		return fmt.Sprintf("quality: duration %s shorter than %s", q.Duration, cfg.MinDuration)
	case q.Duration > cfg.MaxDuration:
		return fmt.Sprintf("quality: duration %s longer than %s", q.Duration, cfg.MaxDuration)
	case q.ClippingRatio > cfg.MaxClippingRatio:
		return fmt.Sprintf("quality: clipping ratio %.4f above %.4f", q.ClippingRatio, cfg.MaxClippingRatio)
	case q.SNR < cfg.MinSNR:
		return fmt.Sprintf("quality: SNR %.1fdB below %.1fdB", q.SNR, cfg.MinSNR)
	case q.EnergyConsistency < cfg.MinEnergyConsistency:
		return fmt.Sprintf("quality: energy consistency %.2f below %.2f", q.EnergyConsistency, cfg.MinEnergyConsistency)
	}
	return ""
}

// crossValidate returns the median similarity of emb against the samples
// (or the centroid when there are none) and the population's average
// pairwise similarity. With fewer than two samples the population figure
// equals the median.
func crossValidate(emb []float32, samples []Sample, centroid []float32) (median, population float64) {
	if len(samples) == 0 {
		s := vecmath.Cosine(emb, centroid)
		return s, s
	}
	sims := make([]float64, len(samples))
	for i, s := range samples {
		sims[i] = vecmath.Cosine(emb, s.Embedding)
	}
	median = vecmath.Median(sims)
	if len(samples) < 2 {
		return median, median
	}
	var sum float64
	var n int
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			sum += vecmath.Cosine(samples[i].Embedding, samples[j].Embedding)
			n++
		}
	}
	return median, sum / float64(n)
}

func (l *Learner) admit(ctx context.Context, p *Profile, active []Sample, sub Submission, q Quality, cv float64, now time.Time) (Decision, error) {
	cfg := l.cfg

	emb := vecmath.Normalize(sub.Embedding)
	if emb == nil {
		return rejected("submission embedding has zero norm"), nil
	}
	if _, err := l.snapshot(ctx, p, active, "before admission", now); err != nil {
		return Decision{}, err
	}

	sample := Sample{
		ID:                  uuid.NewString(),
		ProfileID:           p.ID,
		Source:              SourceAdaptive,
		Embedding:           emb,
		Quality:             q.Score,
		AdmissionSimilarity: sub.Similarity,
		CrossValidation:     cv,
		Weight:              cfg.InitialWeight,
		Decay:               1,
		AdmittedAt:          now,
		Active:              true,
	}
	if err := l.store.CreateSample(ctx, &sample); err != nil {
		return Decision{}, fmt.Errorf("create sample: %w", err)
	}
	active = append(active, sample)

	active, pruned := prune(active, cfg.MaxActiveSamples)
	if len(pruned) > 0 {
		reason := fmt.Sprintf("pruned: active sample cap %d exceeded", cfg.MaxActiveSamples)
		if err := l.store.DeactivateSamples(ctx, p.ID, pruned, reason, now); err != nil {
			return Decision{}, fmt.Errorf("prune: %w", err)
		}
	}

	decay := make(map[string]float64)
	for i := range active {
		if active[i].Source != SourceAdaptive {
			continue
		}
		active[i].Decay = decayFactor(now.Sub(active[i].AdmittedAt), cfg.DecayHalfLife)
		decay[active[i].ID] = active[i].Decay
	}
	if err := l.store.UpdateDecay(ctx, p.ID, decay); err != nil {
		return Decision{}, fmt.Errorf("update decay: %w", err)
	}

	centroid, err := weightedCentroid(active)
	if err != nil {
		return Decision{}, err
	}

	entry, err := l.recordHealth(ctx, p.ID, centroid, active, now)
	if err != nil {
		return Decision{}, err
	}

	p.Centroid = centroid
	p.LastUpdated = now
	p.UpdateCount++
	p.HealthScore = entry.Score
	frozen := entry.Score < cfg.FreezeThreshold
	if frozen {
		p.Frozen = true
		p.FrozenReason = fmt.Sprintf("auto-frozen: health %.2f below %.2f", entry.Score, cfg.FreezeThreshold)
	}
	if err := l.store.UpdateProfile(ctx, p); err != nil {
		return Decision{}, fmt.Errorf("update profile: %w", err)
	}

	reason := fmt.Sprintf("admitted: similarity %.3f, cross-validation %.3f, quality %.2f",
		sub.Similarity, cv, q.Score)
	if slices.Contains(pruned, sample.ID) {
		reason += "; pruned immediately as lowest quality"
	}
	if frozen {
		reason += "; " + p.FrozenReason
		slog.Warn("profile: auto-frozen after admission",
			"profile_id", p.ID, "health", entry.Score, "threshold", cfg.FreezeThreshold)
	}
	return Decision{
		Outcome:  OutcomeAdmitted,
		Reason:   reason,
		SampleID: sample.ID,
		Health:   entry,
		Frozen:   frozen,
	}, nil
}

func (l *Learner) snapshot(ctx context.Context, p *Profile, active []Sample, reason string, now time.Time) (*Snapshot, error) {
	s := &Snapshot{
		ID:          uuid.NewString(),
		ProfileID:   p.ID,
		Centroid:    slices.Clone(p.Centroid),
		HealthScore: p.HealthScore,
		Reason:      reason,
		CreatedAt:   now,
	}
	for _, smp := range active {
		s.SampleIDs = append(s.SampleIDs, smp.ID)
		if smp.Source == SourceEnrollment {
			s.EnrollmentCount++
		} else {
			s.AdaptiveCount++
		}
	}
	if err := l.store.CreateSnapshot(ctx, s); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return s, nil
}

// prune keeps at most limit active adaptive samples, dropping the lowest
// quality first and the oldest among equals. Enrollment samples are never
// pruned.
func prune(active []Sample, limit int) (kept []Sample, pruned []string) {
	var adaptive []Sample
	for _, s := range active {
		if s.Source == SourceAdaptive {
			adaptive = append(adaptive, s)
		}
	}
	excess := len(adaptive) - limit
	if excess <= 0 {
		return active, nil
	}
	sort.SliceStable(adaptive, func(i, j int) bool {
		if adaptive[i].Quality != adaptive[j].Quality {
			return adaptive[i].Quality < adaptive[j].Quality
		}
		return adaptive[i].AdmittedAt.Before(adaptive[j].AdmittedAt)
	})
	for _, s := range adaptive[:excess] {
		pruned = append(pruned, s.ID)
	}
	for _, s := range active {
		if !slices.Contains(pruned, s.ID) {
			kept = append(kept, s)
		}
	}
	return kept, pruned
}

func decayFactor(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func weightedCentroid(samples []Sample) ([]float32, error) {
	vs := make([][]float32, len(samples))
	ws := make([]float64, len(samples))
	for i, s := range samples {
		vs[i] = s.Embedding
		ws[i] = s.EffectiveWeight()
	}
	mean, err := vecmath.WeightedMean(vs, ws)
	if err != nil {
		return nil, fmt.Errorf("recompute centroid: %w", err)
	}
	c := vecmath.Normalize(mean)
	if c == nil {
		return nil, errors.New("recompute centroid: no weighted samples")
	}
	return c, nil
}

func rejected(reason string) Decision {
	return Decision{Outcome: OutcomeRejected, Reason: reason}
}
