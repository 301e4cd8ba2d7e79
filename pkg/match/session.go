package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/argus-labs/arena/pkg/assert"
	"github.com/argus-labs/arena/pkg/battle"
	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/history"
)

type EndReason string

const (
	ReasonTowerDestroyed EndReason = "tower_destroyed"
	ReasonForfeit        EndReason = "forfeit"
	ReasonInternalError  EndReason = "internal_error"
	ReasonShutdown       EndReason = "shutdown"
)

type Player struct {
	Identity
	Energy       int
	LastEnergyAt time.Time
	Connected    bool
}

// Session is the authoritative state of one match. It is not safe for concurrent use: only the match
// goroutine touches it.
type Session struct {
	ID      string
	Players [2]Player
	Board   *battle.Board

	rules   Rules
	catalog *catalog.Catalog
	newID   func() string

	ended    bool
	winnerID string
	reason   EndReason
	dirty    bool
}

// NewSession seats two players with starting energy and full towers.
func NewSession(id string, players [2]Identity, rules Rules, cards *catalog.Catalog, now time.Time) *Session {
	assert.That(players[0].ID != players[1].ID, "a match needs two distinct players, got %q twice", players[0].ID)

	s := &Session{
		ID:      id,
		Board:   battle.NewBoard([2]string{players[0].ID, players[1].ID}, rules.TowerHealth),
		rules:   rules,
		catalog: cards,
		newID:   uuid.NewString,
	}
	for i, p := range players {
		s.Players[i] = Player{Identity: p, Energy: rules.StartingEnergy, LastEnergyAt: now, Connected: true}
	}
	return s
}

func (s *Session) seatOf(playerID string) (battle.Seat, bool) {
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return battle.Seat(i), true
		}
	}
	return 0, false
}

// Ended reports whether the session has terminated.
func (s *Session) Ended() bool {
	return s.ended
}

// Outcome returns the winner (empty for none) and the end reason once the session has ended.
func (s *Session) Outcome() (winnerID string, reason EndReason) {
	return s.winnerID, s.reason
}

// End terminates the session. It returns false if the session had already ended.
func (s *Session) End(winnerID string, reason EndReason) bool {
	if s.ended {
		return false
	}
	s.ended = true
	s.winnerID = winnerID
	s.reason = reason
	s.dirty = true
	return true
}

// ApplyAction validates and applies a player action. On error nothing is changed.
func (s *Session) ApplyAction(playerID string, action Action) error {
	seat, ok := s.seatOf(playerID)
	if !ok {
		return ErrMatchNotFound
	}
	if action.Type != ActionPlayCard {
		return ErrInvalidActionType
	}

	card, ok := s.catalog.Get(action.CardID)
	if !ok {
		return ErrUnknownCard
	}
	if s.ended {
		return ErrMatchEnded
	}
	if !action.Position.InBounds() {
		return ErrInvalidPosition
	}
	player := &s.Players[seat]
	if player.Energy < card.Cost {
		return ErrInsufficientEnergy
	}

	player.Energy -= card.Cost
	switch card.Category {
	case catalog.CategoryUnit:
		s.Board.AddUnit(battle.NewUnit(s.newID(), seat, card, action.Position))
	case catalog.CategoryAreaEffect:
		s.Board.AreaEffects[seat] = &battle.AreaEffect{CardID: card.ID, SynergyTag: card.SynergyTag}
	case catalog.CategorySpell:
		battle.CastSpell(s.Board, seat, action.Position, card.BaseDamage, card.Range)
	}
	s.dirty = true
	return nil
}

// Disconnect marks a participant as gone without ending the match.
func (s *Session) Disconnect(playerID string) {
	if seat, ok := s.seatOf(playerID); ok {
		s.Players[seat].Connected = false
	}
}

// Leave marks a participant as gone and ends the match as a forfeit. The participant still connected wins.
// It returns the id of the remaining participant, if any, and false when the match had already ended.
func (s *Session) Leave(playerID string) (string, bool) {
	seat, ok := s.seatOf(playerID)
	if !ok {
		return "", false
	}
	s.Players[seat].Connected = false
	if s.ended {
		return "", false
	}

	remaining := &s.Players[seat.Opponent()]
	winner := ""
	if remaining.Connected {
		winner = remaining.ID
	}
	s.End(winner, ReasonForfeit)
	return winner, true
}

// RegenerateEnergy adds one energy per whole regen interval elapsed since each player's last regen,
// up to the cap. It reports whether any energy changed.
func (s *Session) RegenerateEnergy(now time.Time) bool {
	changed := false
	interval := s.rules.RegenInterval
	for i := range s.Players {
		p := &s.Players[i]
		if p.Energy >= s.rules.MaxEnergy {
			p.Energy = s.rules.MaxEnergy
			p.LastEnergyAt = now
			continue
		}
		gained := int(now.Sub(p.LastEnergyAt) / interval)
		if gained <= 0 {
			continue
		}
		p.Energy = min(p.Energy+gained, s.rules.MaxEnergy)
		p.LastEnergyAt = p.LastEnergyAt.Add(time.Duration(gained) * interval)
		changed = true
	}
	return changed
}

// TickResult reports what a tick did.
type TickResult struct {
	Changed bool
	Ended   bool
}

// Tick runs one simulation step: energy, synergy, units, area effects, then the win check.
// Changes made by actions since the previous tick count toward Changed.
func (s *Session) Tick(now time.Time) TickResult {
	if s.ended {
		return s.flush(TickResult{Ended: true})
	}

	changed := s.RegenerateEnergy(now)
	changed = battle.RecomputeSynergy(s.Board) || changed
	changed = battle.SimulateUnits(s.Board, s.rules.TickInterval) || changed
	changed = battle.EnforceAreaEffects(s.Board) > 0 || changed

	firstDown, secondDown := s.Board.DestroyedTowers()
	switch {
	case firstDown && secondDown:
		s.End("", ReasonTowerDestroyed)
	case firstDown:
		s.End(s.Players[battle.SeatSecond].ID, ReasonTowerDestroyed)
	case secondDown:
		s.End(s.Players[battle.SeatFirst].ID, ReasonTowerDestroyed)
	}

	s.checkInvariants()
	return s.flush(TickResult{Changed: changed, Ended: s.ended})
}

func (s *Session) flush(res TickResult) TickResult {
	res.Changed = res.Changed || s.dirty
	s.dirty = false
	return res
}

func (s *Session) checkInvariants() {
	for _, p := range s.Players {
		assert.That(p.Energy >= 0 && p.Energy <= s.rules.MaxEnergy, "player %s energy %d out of range", p.ID, p.Energy)
	}
	for _, t := range s.Board.Towers {
		assert.NonNegative(t.Health, "tower health")
	}
	for _, u := range s.Board.Units {
		assert.That(u.Health > 0, "unit %s left on the board with health %v", u.ID, u.Health)
		_, known := s.catalog.Get(u.CardID)
		assert.That(known, "unit %s references unknown card %s", u.ID, u.CardID)
	}
}

// Snapshot exports the client view of the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		MatchID:     s.ID,
		Stage:       StageActive,
		Players:     make([]PlayerView, 0, len(s.Players)),
		Towers:      make([]TowerView, 0, len(s.Board.Towers)),
		Units:       make([]UnitView, 0, len(s.Board.Units)),
		AreaEffects: make([]AreaEffectView, 0, 2),
	}
	if s.ended {
		snap.Stage = StageEnded
		if s.winnerID != "" {
			winner := s.winnerID
			snap.WinnerID = &winner
		}
	}
	for _, p := range s.Players {
		snap.Players = append(snap.Players, PlayerView{ID: p.ID, DisplayName: p.DisplayName, Energy: p.Energy})
	}
	for _, t := range s.Board.Towers {
		snap.Towers = append(snap.Towers, TowerView{
			OwnerID: t.OwnerID, X: t.Position.X, Y: t.Position.Y, Health: t.Health,
		})
	}
	for _, u := range s.Board.Units {
		snap.Units = append(snap.Units, UnitView{
			ID:        u.ID,
			OwnerID:   s.Players[u.Owner].ID,
			CardID:    u.CardID,
			X:         u.Position.X,
			Y:         u.Position.Y,
			Health:    u.Health,
			MaxHealth: u.MaxHealth,
			Damage:    u.Damage,
			Target:    u.Target.String(),
		})
	}
	for seat, effect := range s.Board.AreaEffects {
		if effect == nil {
			continue
		}
		snap.AreaEffects = append(snap.AreaEffects, AreaEffectView{
			OwnerID: s.Players[seat].ID, CardID: effect.CardID, SynergyTag: effect.SynergyTag,
		})
	}
	return snap
}

// Record builds the persisted result of an ended session.
func (s *Session) Record(endedAt time.Time) history.Record {
	towers := make(map[string]float64, len(s.Board.Towers))
	for _, t := range s.Board.Towers {
		towers[t.OwnerID] = t.Health
	}
	return history.Record{
		MatchID:     s.ID,
		Player1ID:   s.Players[battle.SeatFirst].ID,
		Player2ID:   s.Players[battle.SeatSecond].ID,
		WinnerID:    s.winnerID,
		TowerHealth: towers,
		Reason:      string(s.reason),
		EndedAt:     endedAt,
	}
}
