package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/database"
	"github.com/jhjames1/peerchat/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Only the database decides unhealthy; system warnings (listener down,
// scheduler failing, Slack unreachable) degrade the status.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.dbClient != nil {
		if dbStatus, err := database.Health(reqCtx, s.dbClient.DB()); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{
				Status:  healthStatusHealthy,
				Message: fmt.Sprintf("schema v%d, %d/%d connections in use", dbStatus.SchemaVersion, dbStatus.InUse, dbStatus.MaxOpenConns),
			}
		}
	}

	resp := &HealthResponse{Version: version.GitCommit, Checks: checks}
	if s.connManager != nil {
		resp.Connections = s.connManager.ActiveConnections()
	}
	if s.warnings != nil {
		resp.Warnings = s.warnings.GetWarnings()
		if len(resp.Warnings) > 0 && status == healthStatusHealthy {
			status = healthStatusDegraded
		}
	}
	resp.Status = status

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, resp)
}
