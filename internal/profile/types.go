// Package profile implements the adaptive speaker-profile learner and the
// negative-example store.
//
// A profile is created at enrollment from verified baseline samples and is
// afterwards mutated only by admission, rollback and freeze. The learner
// admits new samples conservatively: every submission passes an ordered set
// of gates (profile state, cooldown, baseline size, audio quality,
// similarity, cross-validation) and every decision carries a human-readable
// reason. Before any mutation a snapshot is taken so that a degraded profile
// can be rolled back. Samples are never hard-deleted; they are deactivated
// by pruning or rollback.
//
// All mutations of one profile are serialised by a per-profile lock.
package profile

import (
	"slices"
	"time"
)

// EnrollmentState describes how far a profile got through enrollment.
type EnrollmentState string

const (
	EnrollmentPending  EnrollmentState = "pending"
	EnrollmentComplete EnrollmentState = "complete"
)

// Profile is a user's reference voice.
type Profile struct {
	ID     string
	UserID string

	// Centroid is unit-norm, or nil before enrollment completes.
	Centroid []float32

	Enrollment EnrollmentState

	// HealthScore in [0, 1]; see CheckHealth.
	HealthScore float64

	Frozen       bool
	FrozenReason string

	// AdaptiveEnabled allows the learner to admit new samples.
	AdaptiveEnabled bool

	LastUpdated time.Time
	UpdateCount int
	CreatedAt   time.Time
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Centroid = slices.Clone(p.Centroid)
	return &c
}

// SampleSource tells enrollment samples from adaptively admitted ones.
type SampleSource string

const (
	SourceEnrollment SampleSource = "enrollment"
	SourceAdaptive   SampleSource = "adaptive"
)

// Sample is one embedding that contributes to a profile's centroid.
type Sample struct {
	ID        string
	ProfileID string
	Source    SampleSource
	Embedding []float32

	// Quality in [0, 1], from AnalyzeQuality.
	Quality float64

	// AdmissionSimilarity is the verifier similarity at admission time.
	AdmissionSimilarity float64

	// CrossValidation is the median similarity to the existing population.
	CrossValidation float64

	// Weight is the contribution weight set at admission.
	Weight float64

	// Decay is the age multiplier, 0.5^(age/halfLife).
	Decay float64

	AdmittedAt time.Time
	Active     bool

	DeactivatedReason string
	DeactivatedAt     time.Time
}

// EffectiveWeight is the weight used for the centroid. Enrollment samples
// always count fully.
func (s Sample) EffectiveWeight() float64 {
	if s.Source == SourceEnrollment {
		return 1
	}
	return s.Weight * s.Decay
}

// NegativeExample is a voice sample confidently not from the profile owner.
type NegativeExample struct {
	ID        string
	ProfileID string
	Embedding []float32

	// ConfidenceNotUser is 1 - similarity at capture time.
	ConfidenceNotUser float64

	CapturedAt time.Time
}

// Snapshot is a rollback point taken before every mutation.
type Snapshot struct {
	ID        string
	ProfileID string
	Centroid  []float32

	// SampleIDs are the samples active when the snapshot was taken.
	SampleIDs []string

	EnrollmentCount int
	AdaptiveCount   int
	HealthScore     float64
	Reason          string
	CreatedAt       time.Time
}

// Trend summarises how health moved relative to earlier checks.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendStable           Trend = "stable"
	TrendDegrading        Trend = "degrading"
	TrendInsufficientData Trend = "insufficient_data"
)

// HealthLogEntry is an immutable record of one health check.
type HealthLogEntry struct {
	ID                 string
	ProfileID          string
	Score              float64
	IntraClassVariance float64
	SampleCount        int
	AverageQuality     float64
	Trend              Trend
	Recommendations    []string
	CreatedAt          time.Time
}

// Outcome is the result class of one learner evaluation.
type Outcome string

const (
	OutcomeAdmitted       Outcome = "admitted"
	OutcomeNegativeStored Outcome = "negative_stored"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeRejected       Outcome = "rejected"
)

// Decision is the auditable result of Evaluate. Reason is never empty.
type Decision struct {
	Outcome Outcome
	Reason  string

	// SampleID is set for admitted samples and stored negatives.
	SampleID string

	// Health is set after an admission.
	Health *HealthLogEntry

	// Frozen reports that this admission froze the profile.
	Frozen bool
}
