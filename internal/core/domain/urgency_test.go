package domain

import (
	"errors"
	"math"
	"testing"
)

func TestComputeUrgency_Tiers(t *testing.T) {
	tests := []struct {
		name       string
		level      int
		likelihood float64
		wantScore  float64
		wantTier   Tier
	}{
		{"minimum inputs", 1, 0, 0.6, TierLow},
		{"low", 2, 0.25, 1.6, TierLow},
		{"medium lower bound", 2, 0.5, 2.0, TierMedium},
		{"medium", 3, 0.25, 2.2, TierMedium},
		{"high lower bound", 5, 0, 3.0, TierHigh},
		{"gate boundary", 4, 0.75, 3.6, TierHigh},
		{"critical lower bound", 5, 0.625, 4.0, TierCritical},
		{"maximum inputs", 5, 1, 4.6, TierCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeUrgency(tt.level, tt.likelihood)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(got.Score-tt.wantScore) > 1e-9 {
				t.Errorf("Expected score %v, got %v", tt.wantScore, got.Score)
			}
			if got.Tier != tt.wantTier {
				t.Errorf("Expected tier %s, got %s", tt.wantTier, got.Tier)
			}
		})
	}
}

func TestComputeUrgency_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		level      int
		likelihood float64
	}{
		{"level zero", 0, 0.5},
		{"level six", 6, 0.5},
		{"negative likelihood", 3, -0.01},
		{"likelihood above one", 3, 1.01},
		{"NaN likelihood", 3, math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeUrgency(tt.level, tt.likelihood)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestComputeUrgency_Deterministic(t *testing.T) {
	a, _ := ComputeUrgency(3, 0.42)
	b, _ := ComputeUrgency(3, 0.42)
	if a != b {
		t.Errorf("Expected identical results, got %+v and %+v", a, b)
	}
}

func TestComputeUrgency_Monotonic(t *testing.T) {
	likelihoods := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1}

	// Non-decreasing in threat level for fixed likelihood.
	for _, l := range likelihoods {
		prev := -1.0
		for level := MinThreatLevel; level <= MaxThreatLevel; level++ {
			u, err := ComputeUrgency(level, l)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if u.Score < prev {
				t.Errorf("Score decreased at level=%d likelihood=%v: %v < %v", level, l, u.Score, prev)
			}
			prev = u.Score
		}
	}

	// Non-decreasing in likelihood for fixed threat level.
	for level := MinThreatLevel; level <= MaxThreatLevel; level++ {
		prev := -1.0
		for _, l := range likelihoods {
			u, _ := ComputeUrgency(level, l)
			if u.Score < prev {
				t.Errorf("Score decreased at level=%d likelihood=%v: %v < %v", level, l, u.Score, prev)
			}
			prev = u.Score
		}
	}
}

func TestShouldAutoActivate(t *testing.T) {
	tests := []struct {
		name       string
		level      int
		likelihood float64
		want       bool
	}{
		{"exact thresholds", 4, 0.75, true},
		{"maximum", 5, 1, true},
		{"strong threat", 5, 0.9, true},
		{"level below gate", 3, 0.75, false},
		{"level below gate with certain likelihood", 3, 1, false},
		{"likelihood below gate", 5, 0.74, false},
		// Critical tier on the blended score but the gate stays shut.
		{"critical tier without gate", 5, 0.7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldAutoActivate(ThreatSimulation{Topic: "t", ThreatLevel: tt.level, LikelihoodScore: tt.likelihood})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	u, _ := ComputeUrgency(5, 0.7)
	if u.Tier != TierCritical {
		t.Errorf("Expected Critical tier for (5, 0.7), got %s", u.Tier)
	}
}

func TestShouldAutoActivate_InvalidInput(t *testing.T) {
	_, err := ShouldAutoActivate(ThreatSimulation{ThreatLevel: 7, LikelihoodScore: 0.9})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestThreatSimulationKey(t *testing.T) {
	withID := ThreatSimulation{ID: "sim-1", Topic: "x", ThreatLevel: 4, LikelihoodScore: 0.8}
	if withID.Key() != "sim-1" {
		t.Errorf("Expected explicit id as key, got %s", withID.Key())
	}

	a := ThreatSimulation{Topic: "Negative reviews", ThreatLevel: 4, LikelihoodScore: 0.8}
	b := ThreatSimulation{Topic: "Negative reviews", ThreatLevel: 4, LikelihoodScore: 0.8}
	c := ThreatSimulation{Topic: "Negative reviews", ThreatLevel: 5, LikelihoodScore: 0.8}
	if a.Key() != b.Key() {
		t.Error("Identical simulations should share a key")
	}
	if a.Key() == c.Key() {
		t.Error("Different inputs should produce different keys")
	}
}
