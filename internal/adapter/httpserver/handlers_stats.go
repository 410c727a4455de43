package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const fleetQueryTimeout = 2 * time.Second

type statsResponse struct {
	InstanceID  string `json:"instance_id"`
	Connections int    `json:"connections"`
	// Fleet is omitted without Redis, and null when Redis could not be read.
	Fleet *fleetStats `json:"fleet,omitempty"`
}

type fleetStats struct {
	Connections *int   `json:"connections"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleStats(c echo.Context) error {
	n := s.relay.Len()
	if n < 0 {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "relay not responding")
	}

	response := statsResponse{InstanceID: s.config.InstanceID, Connections: n}

	if s.fleet != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), fleetQueryTimeout)
		defer cancel()

		total, err := s.fleet.Total(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Fleet connection count unavailable", "error", err)
			response.Fleet = &fleetStats{Error: err.Error()}
		} else {
			response.Fleet = &fleetStats{Connections: &total}
		}
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write stats response: %w", err)
	}
	return nil
}
