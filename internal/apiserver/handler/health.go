package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/chunkflow/internal/pkg/httputils"
	"github.com/kart-io/chunkflow/pkg/component/storage"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/infra/app"
	"github.com/kart-io/chunkflow/pkg/middleware"
	"github.com/kart-io/chunkflow/pkg/response"
)

// readinessTimeout bounds one readiness probe.
const readinessTimeout = 5 * time.Second

// HealthChecker probes the backends the API depends on.
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) map[string]storage.HealthStatus
}

// HealthHandler serves /healthz and /readyz.
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type componentHealth struct {
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Message   string `json:"message"`
}

// Liveness handles GET /healthz.
func (h *HealthHandler) Liveness(c *gin.Context) {
	httputils.WriteResponse(c, nil, gin.H{"status": "ok", "version": app.GetVersion()})
}

// Readiness handles GET /readyz. Any unhealthy backend answers 503 with
// the per-backend report.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	healthy := true
	report := make(map[string]componentHealth)
	for name, st := range h.checker.HealthCheckAll(ctx) {
		healthy = healthy && st.Healthy
		report[name] = componentHealth{
			Healthy:   st.Healthy,
			LatencyMS: st.Latency.Milliseconds(),
			Message:   st.Message(),
		}
	}

	resp := response.Success(gin.H{"status": "ready", "components": report})
	if !healthy {
		resp = response.Err(errors.ErrServiceUnavailable)
		resp.Data = gin.H{"status": "not ready", "components": report}
	}
	resp.WithRequestID(middleware.GetRequestID(c.Request.Context()))
	c.JSON(resp.HTTPStatus(), resp)
}

