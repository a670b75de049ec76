package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Internal control surface for domain mutation handlers
	s.echo.POST("/broadcast", s.handleBroadcast)
	s.echo.GET("/seq", s.handleSeqs)
	s.echo.POST("/rate-limit", s.handleRateLimit)

	// Client-facing stream endpoints
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/api/push", s.handleSSE)
}
