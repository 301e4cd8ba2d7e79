package battle

// Multiplier returns the synergy stat multiplier for count live units sharing a tag.
func Multiplier(count int) float64 {
	switch {
	case count >= 3:
		return 2.0
	case count == 2:
		return 1.5
	default:
		return 1.0
	}
}

// RecomputeSynergy rewrites MaxHealth and Damage of every live unit from its base values and the number
// of same-owner units sharing its tag. Gaining max health heals by the gain; losing it clamps health.
// Calling it twice without a board change is a no-op. It reports whether any unit changed.
func RecomputeSynergy(b *Board) bool {
	var counts [2]map[string]int
	for s := range counts {
		counts[s] = make(map[string]int)
	}
	for _, u := range b.Units {
		if u.Alive() && u.SynergyTag != "" {
			counts[u.Owner][u.SynergyTag]++
		}
	}

	changed := false
	for _, u := range b.Units {
		if !u.Alive() {
			continue
		}
		m := 1.0
		if u.SynergyTag != "" {
			m = Multiplier(counts[u.Owner][u.SynergyTag])
		}

		maxHealth := u.BaseHealth * m
		damage := u.BaseDamage * m
		switch {
		case maxHealth > u.MaxHealth:
			u.Health += maxHealth - u.MaxHealth
		case maxHealth < u.MaxHealth:
			u.Health = min(u.Health, maxHealth)
		}
		if maxHealth != u.MaxHealth || damage != u.Damage {
			changed = true
		}
		u.MaxHealth = maxHealth
		u.Damage = damage
	}
	return changed
}
