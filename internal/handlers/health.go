package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/monitoring"
	"github.com/fitos/notify/pkg/response"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	health *monitoring.HealthManager
}

// NewHealthHandler constructs a HealthHandler. A nil manager always reports up.
func NewHealthHandler(health *monitoring.HealthManager) *HealthHandler {
	if health == nil {
		health = monitoring.NewHealthManager()
	}
	return &HealthHandler{health: health}
}

// Health merges liveness and readiness into one report.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := requestContext(c)
	report := monitoring.MergeReports(h.health.EvaluateLiveness(ctx), h.health.EvaluateReadiness(ctx))
	writeReport(c, report)
}

// Live reports process liveness.
func (h *HealthHandler) Live(c *gin.Context) {
	writeReport(c, h.health.EvaluateLiveness(requestContext(c)))
}

// Ready reports whether dependencies are reachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	writeReport(c, h.health.EvaluateReadiness(requestContext(c)))
}

// A degraded dependency still serves traffic; only down fails the probe.
func writeReport(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if report.Status == monitoring.StatusDown {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
