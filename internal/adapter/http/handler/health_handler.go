package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/formulalab/formula-gateway/internal/domain/service"
	"github.com/formulalab/formula-gateway/internal/infrastructure/admission"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	recognizer service.Recognizer
	solver     service.Solver
	redis      *redis.Client
	queue      *admission.Queue
}

// NewHealthHandler creates a new health handler.
// solver, redis and queue may be nil when disabled.
func NewHealthHandler(recognizer service.Recognizer, solver service.Solver, redis *redis.Client, queue *admission.Queue) *HealthHandler {
	return &HealthHandler{
		recognizer: recognizer,
		solver:     solver,
		redis:      redis,
		queue:      queue,
	}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Queue      *admission.Stats  `json:"queue,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string)
	healthy := true

	// Check recognition backend
	if h.recognizer != nil {
		if err := h.recognizer.Ready(ctx); err != nil {
			components["recognizer"] = "error: " + err.Error()
			healthy = false
		} else {
			components["recognizer"] = "ok"
		}
	} else {
		components["recognizer"] = "not configured"
		healthy = false
	}

	// Check solver backend
	if h.solver != nil {
		if err := h.solver.Ready(ctx); err != nil {
			components["solver"] = "error: " + err.Error()
			healthy = false
		} else {
			components["solver"] = "ok"
		}
	} else {
		components["solver"] = "disabled"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			components["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			components["redis"] = "ok"
		}
	} else {
		components["redis"] = "not configured"
	}

	// Report admission queue
	var queueStats *admission.Stats
	switch {
	case h.queue == nil:
		components["queue"] = "not configured"
	case !h.queue.IsEnabled():
		components["queue"] = "unlimited"
	default:
		stats := h.queue.Stats()
		queueStats = &stats
		components["queue"] = "ok"
		if stats.MaxQueue > 0 && stats.Waiting >= stats.MaxQueue {
			components["queue"] = "full"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthStatus{
		Status:     status,
		Components: components,
		Queue:      queueStats,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.recognizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "recognizer not loaded"})
		return
	}
	if err := h.recognizer.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "recognizer unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
