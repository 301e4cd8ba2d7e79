package match

import (
	"time"

	"github.com/rotisserie/eris"
)

// Rules are the tunable constants of a match.
type Rules struct {
	MaxEnergy      int
	StartingEnergy int
	RegenInterval  time.Duration
	TickInterval   time.Duration
	TowerHealth    float64
}

func DefaultRules() Rules {
	return Rules{
		MaxEnergy:      10,
		StartingEnergy: 5,
		RegenInterval:  time.Second,
		TickInterval:   100 * time.Millisecond,
		TowerHealth:    1000,
	}
}

// Validate reports the first rule that cannot drive a match.
func (r Rules) Validate() error {
	if r.MaxEnergy <= 0 {
		return eris.New("max energy must be positive")
	}
	if r.StartingEnergy < 0 || r.StartingEnergy > r.MaxEnergy {
		return eris.Errorf("starting energy must be between 0 and %d", r.MaxEnergy)
	}
	if r.RegenInterval <= 0 {
		return eris.New("energy regen interval must be positive")
	}
	if r.TickInterval <= 0 {
		return eris.New("tick interval must be positive")
	}
	if r.TowerHealth <= 0 {
		return eris.New("tower health must be positive")
	}
	return nil
}
