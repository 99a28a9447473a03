package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	service string
	store   Pinger
}

func NewHealthHandler(service string, store Pinger) *HealthHandler {
	return &HealthHandler{service: service, store: store}
}

// Health reports liveness. A store that does not answer within a second
// degrades the status but predictions keep being served.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	database := "ok"
	if err := h.store.Ping(ctx); err != nil {
		telemetry.Logger.Warn("Store ping failed", zap.Error(err))
		database = "unreachable"
	}

	status := "ok"
	if database != "ok" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "service": h.service, "database": database})
}
