package battle

import (
	"math"
	"time"

	"github.com/argus-labs/arena/pkg/assert"
	"github.com/argus-labs/arena/pkg/catalog"
)

// rangeEpsilon absorbs float error left over after a unit steps exactly to its range.
const rangeEpsilon = 1e-9

// NewUnit creates a unit from a unit card at full base health and zero cooldown.
func NewUnit(id string, owner Seat, card catalog.CardDefinition, pos Position) *Unit {
	assert.That(card.Category == catalog.CategoryUnit, "card %q is not a unit card", card.ID)
	return &Unit{
		ID:               id,
		Owner:            owner,
		CardID:           card.ID,
		SynergyTag:       card.SynergyTag,
		Position:         pos,
		BaseHealth:       card.BaseHealth,
		BaseDamage:       card.BaseDamage,
		Speed:            card.Speed,
		Range:            card.Range,
		AttackIntervalMs: card.AttackIntervalMs,
		Health:           card.BaseHealth,
		MaxHealth:        card.BaseHealth,
		Damage:           card.BaseDamage,
	}
}

// SelectTarget returns the nearest live opposing unit, or the opposing tower when none exist.
// Ties keep the first unit encountered in board order.
func SelectTarget(b *Board, u *Unit) (TargetRef, Position) {
	var (
		best     *Unit
		bestDist = math.Inf(1)
	)
	for _, other := range b.Units {
		if other.Owner == u.Owner || !other.Alive() {
			continue
		}
		if d := u.Position.Distance(other.Position); d < bestDist {
			best, bestDist = other, d
		}
	}
	if best == nil {
		enemy := u.Owner.Opponent()
		return TargetRef{Kind: TargetTower, Seat: enemy}, b.Towers[enemy].Position
	}
	return TargetRef{Kind: TargetUnit, UnitID: best.ID}, best.Position
}

// SimulateUnits advances every live unit by dt: cooldown decay, targeting, movement and attacks.
// Units killed during the step are removed before it returns. It reports whether any visible state changed.
func SimulateUnits(b *Board, dt time.Duration) bool {
	dtMs := float64(dt) / float64(time.Millisecond)
	dtSec := dt.Seconds()
	changed := false

	for _, u := range b.Units {
		if !u.Alive() {
			continue
		}
		if u.CooldownMs > 0 {
			u.CooldownMs -= dtMs
		}

		target, targetPos := SelectTarget(b, u)
		if target != u.Target {
			u.Target = target
			changed = true
		}

		dist := u.Position.Distance(targetPos)
		if dist > u.Range {
			step := math.Min(u.Speed*dtSec, dist-u.Range)
			if step > 0 {
				u.Position.X += (targetPos.X - u.Position.X) / dist * step
				u.Position.Y += (targetPos.Y - u.Position.Y) / dist * step
				dist -= step
				changed = true
			}
		}

		if dist <= u.Range+rangeEpsilon && u.CooldownMs <= 0 {
			strike(b, target, u.Damage)
			u.CooldownMs += u.AttackIntervalMs
			changed = true
		}
	}

	if b.RemoveDead() > 0 {
		changed = true
	}
	return changed
}

func strike(b *Board, target TargetRef, dmg float64) {
	switch target.Kind {
	case TargetUnit:
		if victim, ok := b.UnitByID(target.UnitID); ok {
			applyDamage(&victim.Health, dmg)
		}
	case TargetTower:
		applyDamage(&b.Towers[target.Seat].Health, dmg)
	case TargetNone:
	}
}

// CastSpell deals damage to every opposing unit, and the opposing tower, within radius of center.
// Killed units stay on the board until the next unit step removes them. It reports whether anything was hit.
func CastSpell(b *Board, caster Seat, center Position, damage, radius float64) bool {
	hit := false
	enemy := caster.Opponent()
	for _, u := range b.Units {
		if u.Owner != enemy || !u.Alive() {
			continue
		}
		if center.Distance(u.Position) <= radius {
			applyDamage(&u.Health, damage)
			hit = true
		}
	}
	if tower := &b.Towers[enemy]; center.Distance(tower.Position) <= radius {
		applyDamage(&tower.Health, damage)
		hit = true
	}
	return hit
}

// DestroyedTowers reports which seats have lost their tower.
func (b *Board) DestroyedTowers() (first, second bool) {
	return b.Towers[SeatFirst].Destroyed(), b.Towers[SeatSecond].Destroyed()
}
