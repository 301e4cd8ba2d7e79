package server

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/arena/pkg/match"
)

const (
	writeDeadline  = 5 * time.Second
	sendBufferSize = 64
)

// client is one player's connection. Only its write loop writes to the socket.
type client struct {
	playerID string
	conn     *websocket.Conn
	send     chan []byte

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Hub tracks one connection per player and delivers outbound events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  zerolog.Logger
}

var _ match.Notifier = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// register attaches a connection to a player, closing any previous connection of the same player.
func (h *Hub) register(playerID string, conn *websocket.Conn) *client {
	c := &client{
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	h.mu.Lock()
	previous := h.clients[playerID]
	h.clients[playerID] = c
	h.mu.Unlock()

	if previous != nil {
		h.logger.Info().Str("player_id", playerID).Msg("connection replaced by a newer one")
		previous.close()
	}
	return c
}

// unregister detaches c. It reports false when c had already been replaced or removed.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	current := h.clients[c.playerID] == c
	if current {
		delete(h.clients, c.playerID)
	}
	h.mu.Unlock()

	c.close()
	return current
}

// Connections returns the number of connected players.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connected reports whether the player has a live connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

func (h *Hub) Send(playerID string, event match.Event) {
	h.Broadcast([]string{playerID}, event)
}

func (h *Hub) Broadcast(playerIDs []string, event match.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.Name).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range playerIDs {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("player_id", id).Str("event", event.Name).Msg("send buffer full, closing connection")
			c.close()
		}
	}
}

// writeLoop drains the send buffer to the socket until the client is closed or a write fails.
func (h *Hub) writeLoop(c *client) {
	defer close(c.stopped)
	defer func() {
		if err := c.conn.Close(); err != nil {
			h.logger.Debug().Err(err).Str("player_id", c.playerID).Msg("closing connection")
		}
	}()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err == nil {
				err = c.conn.WriteMessage(websocket.TextMessage, data)
			}
			if err != nil {
				err = eris.Wrap(err, "failed to write to websocket")
				h.logger.Warn().Err(err).Str("player_id", c.playerID).Msg("dropping connection")
				c.close()
				return
			}
		}
	}
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
