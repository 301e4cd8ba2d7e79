package match

import "github.com/rotisserie/eris"

// Outbound event names.
const (
	EventMatchFound      = "matchFound"
	EventGameStateUpdate = "gameStateUpdate"
	EventActionInvalid   = "actionInvalid"
	EventOpponentLeft    = "opponentLeft"
	EventGameOver        = "gameOver"
)

// Event is one outbound message. The transport encodes it as {"event": Name, "data": Data}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Notifier delivers events to connected players. Deliveries to a player without a connection are dropped.
type Notifier interface {
	Send(playerID string, event Event)
	Broadcast(playerIDs []string, event Event)
}

type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type MatchFound struct {
	MatchID string     `json:"matchId"`
	Players []Identity `json:"players"`
}

type ActionInvalid struct {
	Message string `json:"message"`
}

type OpponentLeft struct {
	PlayerID string `json:"playerId"`
}

type GameOver struct {
	WinnerID *string   `json:"winnerId"`
	Reason   EndReason `json:"reason"`
}

func NewMatchFound(matchID string, players []Identity) Event {
	return Event{Name: EventMatchFound, Data: MatchFound{MatchID: matchID, Players: players}}
}

func NewActionInvalid(err error) Event {
	return Event{Name: EventActionInvalid, Data: ActionInvalid{Message: clientMessage(err)}}
}

func newGameStateUpdate(s Snapshot) Event {
	return Event{Name: EventGameStateUpdate, Data: s}
}

func newOpponentLeft(playerID string) Event {
	return Event{Name: EventOpponentLeft, Data: OpponentLeft{PlayerID: playerID}}
}

func newGameOver(winnerID string, reason EndReason) Event {
	over := GameOver{Reason: reason}
	if winnerID != "" {
		over.WinnerID = &winnerID
	}
	return Event{Name: EventGameOver, Data: over}
}

// clientMessage strips eris stack and wrap context down to the message of the outermost error.
func clientMessage(err error) string {
	for _, known := range []error{
		ErrUnknownCard, ErrInsufficientEnergy, ErrMatchNotFound, ErrMatchEnded,
		ErrInvalidActionType, ErrInvalidPosition, ErrTooManyActions, ErrAlreadyInMatch,
	} {
		if eris.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

// Snapshot is the client view of a match. Timestamps and cooldowns are internal and left out.
type Snapshot struct {
	MatchID     string           `json:"matchId"`
	Stage       Stage            `json:"stage"`
	Players     []PlayerView     `json:"players"`
	Towers      []TowerView      `json:"towers"`
	Units       []UnitView       `json:"units"`
	AreaEffects []AreaEffectView `json:"areaEffects"`
	WinnerID    *string          `json:"winnerId"`
}

type PlayerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Energy      int    `json:"energy"`
}

type TowerView struct {
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Health  float64 `json:"health"`
}

type UnitView struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	CardID    string  `json:"cardId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Damage    float64 `json:"damage"`
	Target    string  `json:"target,omitempty"`
}

type AreaEffectView struct {
	OwnerID    string `json:"ownerId"`
	CardID     string `json:"cardId"`
	SynergyTag string `json:"synergyTag"`
}
