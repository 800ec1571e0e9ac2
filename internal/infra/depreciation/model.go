// Package depreciation synthesizes condition attributes for found items.
// Smooth noise keeps two items of the same age from being clones while the
// same item re-queried is exactly reproducible, which the broker relies on
// when it replays a resolution.
package depreciation

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

const (
	// conditionCap bounds both attributes; nothing on the used market is a
	// total write-off.
	conditionCap = 0.85

	// Full ramp ages: damage accumulates over ~30 years, wear over ~20.
	damageRampMonths = 360.0
	wearRampMonths   = 240.0

	// jitterShare scales the noise band around the age ramp.
	jitterShare = 0.5

	noiseFrequency = 0.17
)

// Model implements domain.Depreciator.
type Model struct{}

// NewModel creates the default depreciation model.
func NewModel() *Model { return &Model{} }

// Condition returns damage and wear for an item of the given age. Both are
// zero at age zero and ramp with age, jittered by seed-determined noise
// into [0.5×ramp, 1.5×ramp], capped at conditionCap.
func (m *Model) Condition(seed int64, ageMonths int) (damage, wear float64) {
	if ageMonths <= 0 {
		return 0, 0
	}
	age := float64(ageMonths)

	// Independent noise layers, mini-world style: seed offsets per layer.
	dn := opensimplex.NewNormalized(seed)
	wn := opensimplex.NewNormalized(seed + 1)

	dJitter := (dn.Eval2(age*noiseFrequency, 0) - 0.5) * 2 // [-1, 1]
	wJitter := (wn.Eval2(0, age*noiseFrequency) - 0.5) * 2

	damage = clampCondition(age / damageRampMonths * (1 + jitterShare*dJitter))
	wear = clampCondition(age / wearRampMonths * (1 + jitterShare*wJitter))
	return damage, wear
}

func clampCondition(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > conditionCap {
		return conditionCap
	}
	return v
}
