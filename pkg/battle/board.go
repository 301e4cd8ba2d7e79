// Package battle holds the board model of a match and the pure resolution steps run on it every tick:
// synergy recomputation, unit simulation and area-effect enforcement.
package battle

import (
	"math"
)

// Board geometry. The first seat owns the half with Y < HalfThreshold.
const (
	BoardWidth    = 18.0
	BoardHeight   = 32.0
	HalfThreshold = BoardHeight / 2
)

// Seat indexes into the two per-player arrays of a Board.
type Seat int

const (
	SeatFirst  Seat = 0
	SeatSecond Seat = 1
)

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	return 1 - s
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance is the Euclidean distance between two positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// InBounds reports whether p lies on the board.
func (p Position) InBounds() bool {
	return p.X >= 0 && p.X <= BoardWidth && p.Y >= 0 && p.Y <= BoardHeight
}

// HalfOf returns the seat whose half contains p.
func HalfOf(p Position) Seat {
	if p.Y < HalfThreshold {
		return SeatFirst
	}
	return SeatSecond
}

// TowerPosition is the fixed tower location of a seat.
func TowerPosition(s Seat) Position {
	if s == SeatFirst {
		return Position{X: BoardWidth / 2, Y: 2}
	}
	return Position{X: BoardWidth / 2, Y: BoardHeight - 2}
}

type Tower struct {
	OwnerID  string
	Position Position
	Health   float64
}

// Destroyed reports whether the tower has been finalized.
func (t *Tower) Destroyed() bool {
	return t.Health <= 0
}

type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetUnit
	TargetTower
)

// TargetRef names what a unit is aimed at. It is resolved against the board on every use and never
// holds a pointer, since units come and go between ticks.
type TargetRef struct {
	Kind TargetKind
	// UnitID is set for TargetUnit.
	UnitID string
	// Seat is the tower owner's seat for TargetTower.
	Seat Seat
}

func (r TargetRef) String() string {
	switch r.Kind {
	case TargetUnit:
		return "unit:" + r.UnitID
	case TargetTower:
		if r.Seat == SeatFirst {
			return "tower:0"
		}
		return "tower:1"
	case TargetNone:
	}
	return ""
}

// Unit is a deployed unit instance. Base values come from the card and stay fixed; MaxHealth and
// Damage are rewritten by synergy every tick.
type Unit struct {
	ID         string
	Owner      Seat
	CardID     string
	SynergyTag string
	Position   Position

	BaseHealth       float64
	BaseDamage       float64
	Speed            float64
	Range            float64
	AttackIntervalMs float64

	Health     float64
	MaxHealth  float64
	Damage     float64
	Target     TargetRef
	CooldownMs float64
}

// Alive reports whether the unit still has health.
func (u *Unit) Alive() bool {
	return u.Health > 0
}

// AreaEffect is a player's active biome restriction.
type AreaEffect struct {
	CardID     string
	SynergyTag string
}

// Board is the mutable battlefield of one match. It is owned by a single goroutine.
type Board struct {
	Towers      [2]Tower
	Units       []*Unit
	AreaEffects [2]*AreaEffect
}

// NewBoard places both towers at full health.
func NewBoard(ownerIDs [2]string, towerHealth float64) *Board {
	b := &Board{Units: make([]*Unit, 0, 16)}
	for s := SeatFirst; s <= SeatSecond; s++ {
		b.Towers[s] = Tower{OwnerID: ownerIDs[s], Position: TowerPosition(s), Health: towerHealth}
	}
	return b
}

// AddUnit appends a unit to the board.
func (b *Board) AddUnit(u *Unit) {
	b.Units = append(b.Units, u)
}

// UnitByID returns the live unit with the given id.
func (b *Board) UnitByID(id string) (*Unit, bool) {
	for _, u := range b.Units {
		if u.ID == id && u.Alive() {
			return u, true
		}
	}
	return nil, false
}

// RemoveDead drops every unit at or below zero health, preserving order. It returns the number removed.
func (b *Board) RemoveDead() int {
	kept := b.Units[:0]
	for _, u := range b.Units {
		if u.Alive() {
			kept = append(kept, u)
		}
	}
	removed := len(b.Units) - len(kept)
	for i := len(kept); i < len(b.Units); i++ {
		b.Units[i] = nil
	}
	b.Units = kept
	return removed
}

// applyDamage lowers health by dmg without going below zero.
func applyDamage(health *float64, dmg float64) {
	*health = math.Max(*health-dmg, 0)
}
