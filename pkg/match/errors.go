package match

import "github.com/rotisserie/eris"

// Client-attributable errors. They are reported to the acting connection and never change match state.
var (
	ErrUnknownCard        = eris.New("unknown card")
	ErrInsufficientEnergy = eris.New("insufficient energy")
	ErrMatchNotFound      = eris.New("match not found")
	ErrMatchEnded         = eris.New("match has ended")
	ErrInvalidActionType  = eris.New("invalid action type")
	ErrInvalidPosition    = eris.New("position is outside the board")
	ErrTooManyActions     = eris.New("too many pending actions")
)

// ErrInternalTickFailure wraps anything a tick returned or panicked with.
var ErrInternalTickFailure = eris.New("internal tick failure")

// ErrAlreadyInMatch is returned when creating a match for a player who is still in an active one.
var ErrAlreadyInMatch = eris.New("player is already in an active match")
