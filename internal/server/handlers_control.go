package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/NAinfini/guildhall/internal/errors"
	"github.com/NAinfini/guildhall/internal/push"
)

type broadcastRequest struct {
	Entity        string            `json:"entity"`
	Action        string            `json:"action"`
	Payload       []json.RawMessage `json:"payload"`
	IDs           []int64           `json:"ids"`
	Timestamp     *time.Time        `json:"timestamp"`
	ExcludeUserID string            `json:"excludeUserId"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid broadcast request body")
	}
	if req.Entity == "" {
		return apperrors.ValidationError("entity is required")
	}
	if req.Action == "" {
		return apperrors.ValidationError("action is required")
	}

	envelope := push.Envelope{
		Entity:         req.Entity,
		Action:         req.Action,
		Payload:        req.Payload,
		IDs:            req.IDs,
		ExcludeActorID: req.ExcludeUserID,
	}
	if req.Timestamp != nil {
		envelope.Timestamp = req.Timestamp.UTC()
	}

	sent, err := s.coordinator.Broadcast(c.Request().Context(), envelope)
	if err != nil {
		return apperrors.InternalError("broadcast failed", err).WithField("entity", req.Entity)
	}

	if err := c.JSON(200, map[string]int{"sent": sent}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSeqs(c echo.Context) error {
	seqs, err := s.coordinator.Seqs(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to read sequence table", err)
	}

	if err := c.JSON(200, seqs); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type rateLimitRequest struct {
	Key         string `json:"key"`
	MaxRequests *int64 `json:"maxRequests"`
	WindowMs    int64  `json:"windowMs"`
}

func (s *Server) handleRateLimit(c echo.Context) error {
	var req rateLimitRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid rate limit request body")
	}
	if req.Key == "" {
		return apperrors.ValidationError("key is required")
	}
	if req.MaxRequests == nil || *req.MaxRequests < 0 {
		return apperrors.ValidationError("maxRequests must be a non-negative integer")
	}
	if req.WindowMs <= 0 {
		return apperrors.ValidationError("windowMs must be positive")
	}

	result, err := s.coordinator.RateLimit(
		c.Request().Context(),
		req.Key,
		*req.MaxRequests,
		time.Duration(req.WindowMs)*time.Millisecond,
	)
	if err != nil {
		return apperrors.InternalError("rate limit check failed", err).WithField("key", req.Key)
	}

	if err := c.JSON(200, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
