// Package server exposes the arena over HTTP: a websocket endpoint carrying the game protocol and a health check.
package server

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/arena/pkg/match"
)

const shutdownTimeout = 5 * time.Second

// IdentityResolver turns a connection credential into a player.
type IdentityResolver interface {
	ResolveIdentity(token string) (match.Identity, error)
}

// Matchmaker is the pre-match entry point.
type Matchmaker interface {
	FindMatch(ctx context.Context, player match.Identity) error
	CancelFindMatch(playerID string) bool
	Waiting() int
}

// Matches routes in-match actions.
type Matches interface {
	Submit(playerID string, action match.Action) error
	Leave(playerID string)
	ActiveCount() int
}

type Options struct {
	Port       string
	Resolver   IdentityResolver
	Matchmaker Matchmaker
	Matches    Matches
	Hub        *Hub
	Logger     zerolog.Logger
}

func (opt *Options) validate() error {
	if opt.Resolver == nil {
		return eris.New("identity resolver cannot be nil")
	}
	if opt.Matchmaker == nil {
		return eris.New("matchmaker cannot be nil")
	}
	if opt.Matches == nil {
		return eris.New("matches cannot be nil")
	}
	if opt.Hub == nil {
		return eris.New("hub cannot be nil")
	}
	return nil
}

type Server struct {
	app  *fiber.App
	opts Options
	log  zerolog.Logger
}

func New(opts Options) (*Server, error) {
	if err := opts.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid server options")
	}
	if opts.Port == "" {
		opts.Port = "4040"
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp", // Enable server listening on both ipv4 & ipv6 (default: ipv4 only)
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})
	app.Use(cors.New())

	s := &Server{app: app, opts: opts, log: opts.Logger}
	s.setupRoutes()
	return s, nil
}

// Serve listens on the configured port and blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.opts.Port)
	if err != nil {
		return eris.Wrapf(err, "failed to listen on port %s", s.opts.Port)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener. It blocks until ctx is cancelled or the listener fails.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)

	go func() {
		s.log.Info().Str("address", ln.Addr().String()).Msg("Starting HTTP server")
		if err := s.app.Listener(ln); err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return eris.Wrap(err, "server encountered an error")
	case <-ctx.Done():
		if err := s.shutdown(); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}
	return nil
}

// shutdown closes every websocket, then stops the listener.
func (s *Server) shutdown() error {
	s.log.Info().Msg("Shutting down server")
	s.opts.Hub.Close()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return eris.Wrap(err, "error shutting down server")
	}
	s.log.Info().Msg("Successfully shut down server")
	return nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.getHealth)

	s.app.Use("/ws", s.upgrader)
	s.app.Get("/ws", websocket.New(s.handleConnection))
}
