// Package confidence computes bounded confidence values from weighted
// observation factors. Everything here is pure: same factors in, same score
// out, no clock reads and no side effects.
package confidence

// Factors are the scoring inputs observed for a single entity observation.
type Factors struct {
	// SourceCredibility is the extractor's trust in the source, in [0,1].
	SourceCredibility float64
	// EvidenceCount is how many independent pieces of evidence support the
	// observation. Saturates at 5.
	EvidenceCount int
	// RecencyYears is the age of the underlying material in years.
	RecencyYears float64
	// JurisdictionMatch is true when the source jurisdiction matches the
	// matter jurisdiction.
	JurisdictionMatch bool
}

// Weights control the contribution of each factor. The defaults sum to 1.
type Weights struct {
	Credibility  float64
	Evidence     float64
	Recency      float64
	Jurisdiction float64
}

// DefaultWeights returns the standard factor weighting.
func DefaultWeights() Weights {
	return Weights{
		Credibility:  0.4,
		Evidence:     0.3,
		Recency:      0.2,
		Jurisdiction: 0.1,
	}
}

// recencyHorizonYears is the age at which recency contribution reaches zero.
const recencyHorizonYears = 10.0

// RecencyDecay maps material age in years to a [0,1] factor. Linear decay to
// zero at ten years, monotone non-increasing, never negative.
func RecencyDecay(ageYears float64) float64 {
	if ageYears <= 0 {
		return 1
	}
	if ageYears >= recencyHorizonYears {
		return 0
	}
	return 1 - ageYears/recencyHorizonYears
}

// Score computes the weighted confidence for the given factors, clamped to
// [0,1].
func Score(f Factors) float64 {
	return ScoreWith(f, DefaultWeights())
}

// ScoreWith computes the weighted confidence using explicit weights.
func ScoreWith(f Factors, w Weights) float64 {
	evidence := float64(f.EvidenceCount) / 5.0
	if evidence > 1 {
		evidence = 1
	}
	if evidence < 0 {
		evidence = 0
	}

	cred := Clamp(f.SourceCredibility)

	s := cred*w.Credibility +
		evidence*w.Evidence +
		RecencyDecay(f.RecencyYears)*w.Recency
	if f.JurisdictionMatch {
		s += w.Jurisdiction
	}
	return Clamp(s)
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
