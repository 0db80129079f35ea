package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"verdict.app/engine/internal/service"
)

type HealthChecker interface {
	Check(ctx context.Context) service.HealthReport
}

type HealthHandler struct {
	checker HealthChecker
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Live only says the process is serving.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": service.HealthStatusOK})
}

// Ready probes every registered dependency and answers 503 when any is down.
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
