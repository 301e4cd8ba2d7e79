package match

import "github.com/argus-labs/arena/pkg/battle"

type ActionType string

const (
	ActionPlayCard ActionType = "PLAY_CARD"
	// ActionForfeit is raised by the transport when a participant disconnects.
	ActionForfeit ActionType = "FORFEIT"
)

type Action struct {
	Type     ActionType
	CardID   string
	Position battle.Position
}

// PlayCard builds a PLAY_CARD action.
func PlayCard(cardID string, x, y float64) Action {
	return Action{Type: ActionPlayCard, CardID: cardID, Position: battle.Position{X: x, Y: y}}
}
