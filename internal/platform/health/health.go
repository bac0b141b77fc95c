// Package health exposes liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker reports whether a dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler serves /health and /health/ready.
type Handler struct {
	service  string
	checkers map[string]Checker
}

// NewHandler creates a Handler. Readiness fails if any checker fails.
func NewHandler(service string, checkers map[string]Checker) *Handler {
	return &Handler{service: service, checkers: checkers}
}

// RegisterRoutes registers the health routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Live)
	r.GET("/health/ready", h.Ready)
}

// Live always answers 200 while the process is up.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": h.service})
}

// Ready pings every checker and answers 503 if any fails.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checkers))
	for name, chk := range h.checkers {
		if err := chk.Ping(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"service": h.service, "checks": results})
}
