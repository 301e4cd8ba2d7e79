package server

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/match"
)

const localsIdentity = "identity"

// Inbound event names.
const (
	EventFindMatch       = "findMatch"
	EventCancelFindMatch = "cancelFindMatch"
	EventPlayCard        = "playCard"
)

var errMalformedMessage = eris.New("malformed message")

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type playCardRequest struct {
	CardID    *string  `json:"cardId"`
	PositionX *float64 `json:"positionX"`
	PositionY *float64 `json:"positionY"`
}

type GetHealthResponse struct {
	IsServerRunning bool `json:"isServerRunning"`
	ActiveMatches   int  `json:"activeMatches"`
	WaitingPlayers  int  `json:"waitingPlayers"`
	Connections     int  `json:"connections"`
}

func (s *Server) getHealth(c *fiber.Ctx) error {
	return c.JSON(GetHealthResponse{
		IsServerRunning: true,
		ActiveMatches:   s.opts.Matches.ActiveCount(),
		WaitingPlayers:  s.opts.Matchmaker.Waiting(),
		Connections:     s.opts.Hub.Connections(),
	})
}

// upgrader authenticates the player before allowing the websocket upgrade. The credential is read from the
// token query parameter or a bearer Authorization header.
func (s *Server) upgrader(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	}
	identity, err := s.opts.Resolver.ResolveIdentity(token)
	if err != nil {
		s.log.Debug().Err(err).Str("ip", c.IP()).Msg("rejected connection")
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	c.Locals(localsIdentity, identity)
	return c.Next()
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	identity, ok := conn.Locals(localsIdentity).(match.Identity)
	if !ok {
		_ = conn.Close()
		return
	}
	logger := s.log.With().Str("player_id", identity.ID).Logger()

	c := s.opts.Hub.register(identity.ID, conn)
	go s.opts.Hub.writeLoop(c)
	logger.Debug().Msg("player connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := s.dispatch(ctx, identity, msg); err != nil {
			logger.Debug().Err(err).Msg("action rejected")
			s.opts.Hub.Send(identity.ID, match.NewActionInvalid(err))
		}
	}

	// A connection replaced by a newer one leaves the player's queue and match state alone.
	if s.opts.Hub.unregister(c) {
		s.opts.Matchmaker.CancelFindMatch(identity.ID)
		s.opts.Matches.Leave(identity.ID)
		logger.Debug().Msg("player disconnected")
	}
	// The socket is released when this handler returns.
	<-c.stopped
}

// dispatch routes one inbound message. Returned errors are client-attributable.
func (s *Server) dispatch(ctx context.Context, identity match.Identity, msg []byte) error {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		return errMalformedMessage
	}

	switch in.Event {
	case EventFindMatch:
		return s.opts.Matchmaker.FindMatch(ctx, identity)
	case EventCancelFindMatch:
		s.opts.Matchmaker.CancelFindMatch(identity.ID)
		return nil
	case EventPlayCard:
		var req playCardRequest
		if len(in.Data) == 0 || json.Unmarshal(in.Data, &req) != nil {
			return errMalformedMessage
		}
		if req.CardID == nil || req.PositionX == nil || req.PositionY == nil {
			return eris.Wrap(errMalformedMessage, "cardId, positionX and positionY are required")
		}
		return s.opts.Matches.Submit(identity.ID, match.PlayCard(*req.CardID, *req.PositionX, *req.PositionY))
	default:
		return match.ErrInvalidActionType
	}
}
