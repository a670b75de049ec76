// Package server exposes the coordinator over HTTP: the internal control
// surface (broadcast, seq, rate-limit), the WebSocket upgrade endpoint, and
// the public SSE push endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/NAinfini/guildhall/internal/config"
	apperrors "github.com/NAinfini/guildhall/internal/errors"
	"github.com/NAinfini/guildhall/internal/push"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	coordinator *push.Coordinator
	clock       clockwork.Clock
	limits      *ConnectionLimits
	redis       *goredis.Client // nil when running on the in-memory store
}

func NewServer(cfg *config.Config, coordinator *push.Coordinator, redisClient *goredis.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		coordinator: coordinator,
		clock:       clock,
		limits:      NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		redis:       redisClient,
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
