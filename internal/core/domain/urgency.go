package domain

import (
	"fmt"
	"math"
)

type Tier string

const (
	TierCritical Tier = "Critical"
	TierHigh     Tier = "High"
	TierMedium   Tier = "Medium"
	TierLow      Tier = "Low"
)

const (
	MinThreatLevel = 1
	MaxThreatLevel = 5
)

// Urgency is the blended display score of a threat and its tier.
type Urgency struct {
	Score float64 `json:"score"`
	Tier  Tier    `json:"tier"`
}

// ComputeUrgency blends threat level and likelihood into a 0-5 score:
//
//	score = threatLevel*0.6 + (likelihood*4)*0.4
//
// Tiers use inclusive lower bounds checked high to low. Inputs are never
// clamped: threatLevel outside [1,5] or likelihood outside [0,1] is rejected
// with ErrInvalidInput.
//
// This is a pure function with no I/O dependencies.
func ComputeUrgency(threatLevel int, likelihood float64) (Urgency, error) {
	if err := ValidateThreatInputs(threatLevel, likelihood); err != nil {
		return Urgency{}, err
	}

	raw := float64(threatLevel)*0.6 + (likelihood*4)*0.4
	// Round off float noise so boundary inputs land in the tier they read as.
	score := math.Round(raw*1e6) / 1e6

	return Urgency{Score: score, Tier: TierFor(score)}, nil
}

// TierFor buckets a score.
func TierFor(score float64) Tier {
	switch {
	case score >= 4.0:
		return TierCritical
	case score >= 3.0:
		return TierHigh
	case score >= 2.0:
		return TierMedium
	default:
		return TierLow
	}
}

// ValidateThreatInputs checks the scorer and gate input contract.
func ValidateThreatInputs(threatLevel int, likelihood float64) error {
	if threatLevel < MinThreatLevel || threatLevel > MaxThreatLevel {
		return fmt.Errorf("%w: threat level %d outside [%d,%d]", ErrInvalidInput, threatLevel, MinThreatLevel, MaxThreatLevel)
	}
	if math.IsNaN(likelihood) || likelihood < 0 || likelihood > 1 {
		return fmt.Errorf("%w: likelihood %v outside [0,1]", ErrInvalidInput, likelihood)
	}
	return nil
}
