package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"motion-transfer-backend/internal/models"
)

// Pinger is satisfied by stores backed by a real database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	version string
}

// NewHealthHandler builds the health endpoint. db may be nil when the service runs on the
// in-memory store.
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

// Check godoc
// @Summary     Health check
// @Description Returns the health status of the API and its database
// @Tags        health
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Failure     503 {object} models.HealthResponse
// @Router      /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}

	if h.db == nil {
		response.DB = "memory"
		c.JSON(http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		response.Status = "degraded"
		response.DB = "unreachable"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.DB = "ok"
	c.JSON(http.StatusOK, response)
}
