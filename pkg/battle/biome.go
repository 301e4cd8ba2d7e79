package battle

// EnforceAreaEffects removes every unit standing in a half whose owner has an active area effect with a
// different synergy tag. Units of either player are affected. It returns the number of units removed.
func EnforceAreaEffects(b *Board) int {
	if b.AreaEffects[SeatFirst] == nil && b.AreaEffects[SeatSecond] == nil {
		return 0
	}
	kept := b.Units[:0]
	for _, u := range b.Units {
		effect := b.AreaEffects[HalfOf(u.Position)]
		if effect != nil && u.SynergyTag != effect.SynergyTag {
			continue
		}
		kept = append(kept, u)
	}
	removed := len(b.Units) - len(kept)
	for i := len(kept); i < len(b.Units); i++ {
		b.Units[i] = nil
	}
	b.Units = kept
	return removed
}
