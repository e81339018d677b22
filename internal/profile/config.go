package profile

import "time"

// Config holds the learner and negative-store tunables. Zero fields take the
// defaults listed in [DefaultConfig].
type Config struct {
	// Gate 2.
	Cooldown time.Duration

	// Gate 3: enrollment plus active adaptive samples.
	MinBaselineSamples int

	// Gate 4.
	MinDuration          time.Duration
	MaxDuration          time.Duration
	MaxClippingRatio     float64
	MinSNR               float64 // dB
	MinEnergyConsistency float64

	// Gate 5. AdmissionThreshold is stricter than the routing threshold used
	// by the speaker verifier.
	AdmissionThreshold float64
	NegativeThreshold  float64

	// Gate 6.
	MinCrossValidation     float64
	MaxPopulationDeviation float64

	// Admission.
	InitialWeight     float64
	MaxActiveSamples  int
	DecayHalfLife     time.Duration
	FreezeThreshold   float64
	VarianceThreshold float64
	VariancePenalty   float64
	QualityBonus      float64
	TrendDelta        float64
	TrendWindow       int

	// Negatives.
	NegativeDuplicateSimilarity float64
	NegativeDuplicateWindow     int
	NegativeRetention           int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Cooldown:                    5 * time.Minute,
		MinBaselineSamples:          10,
		MinDuration:                 1500 * time.Millisecond,
		MaxDuration:                 15 * time.Second,
		MaxClippingRatio:            0.01,
		MinSNR:                      10,
		MinEnergyConsistency:        0.5,
		AdmissionThreshold:          0.85,
		NegativeThreshold:           0.45,
		MinCrossValidation:          0.75,
		MaxPopulationDeviation:      0.15,
		InitialWeight:               0.5,
		MaxActiveSamples:            50,
		DecayHalfLife:               30 * 24 * time.Hour,
		FreezeThreshold:             0.5,
		VarianceThreshold:           0.15,
		VariancePenalty:             2.0,
		QualityBonus:                0.2,
		TrendDelta:                  0.05,
		TrendWindow:                 5,
		NegativeDuplicateSimilarity: 0.95,
		NegativeDuplicateWindow:     100,
		NegativeRetention:           500,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	setDur := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	setF := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	setI := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setDur(&c.Cooldown, d.Cooldown)
	setI(&c.MinBaselineSamples, d.MinBaselineSamples)
	setDur(&c.MinDuration, d.MinDuration)
	setDur(&c.MaxDuration, d.MaxDuration)
	setF(&c.MaxClippingRatio, d.MaxClippingRatio)
	setF(&c.MinSNR, d.MinSNR)
	setF(&c.MinEnergyConsistency, d.MinEnergyConsistency)
	setF(&c.AdmissionThreshold, d.AdmissionThreshold)
	setF(&c.NegativeThreshold, d.NegativeThreshold)
	setF(&c.MinCrossValidation, d.MinCrossValidation)
	setF(&c.MaxPopulationDeviation, d.MaxPopulationDeviation)
	setF(&c.InitialWeight, d.InitialWeight)
	setI(&c.MaxActiveSamples, d.MaxActiveSamples)
	setDur(&c.DecayHalfLife, d.DecayHalfLife)
	setF(&c.FreezeThreshold, d.FreezeThreshold)
	setF(&c.VarianceThreshold, d.VarianceThreshold)
	setF(&c.VariancePenalty, d.VariancePenalty)
	setF(&c.QualityBonus, d.QualityBonus)
	setF(&c.TrendDelta, d.TrendDelta)
	setI(&c.TrendWindow, d.TrendWindow)
	setF(&c.NegativeDuplicateSimilarity, d.NegativeDuplicateSimilarity)
	setI(&c.NegativeDuplicateWindow, d.NegativeDuplicateWindow)
	setI(&c.NegativeRetention, d.NegativeRetention)
	return c
}
