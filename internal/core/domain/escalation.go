package domain

const (
	GateThreatLevel = 4
	GateLikelihood  = 0.75
)

// ShouldAutoActivate is the escalation gate. It fires only when both raw
// inputs reach their thresholds; the urgency tier plays no part.
func ShouldAutoActivate(sim ThreatSimulation) (bool, error) {
	if err := ValidateThreatInputs(sim.ThreatLevel, sim.LikelihoodScore); err != nil {
		return false, err
	}
	return sim.ThreatLevel >= GateThreatLevel && sim.LikelihoodScore >= GateLikelihood, nil
}
