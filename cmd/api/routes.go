package main

import (
	"database/sql"
	"net/http"
	"time"

	"patient-followup/internal/calls"
	"patient-followup/internal/httpapi"
	"patient-followup/internal/rbac"
	"patient-followup/internal/telephony"
	"patient-followup/pkg/metrics"
	"patient-followup/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Keep this file free of business logic. Handlers delegate to internal modules.

// registerPublicRoutes wires carrier-facing endpoints, health checks and the metrics scrape.
func registerPublicRoutes(r *gin.Engine, orch *calls.Orchestrator, db *sql.DB, reg prometheus.Gatherer) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Patient follow-up API is running", "status": "healthy"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	// healthz also checks storage when Postgres is configured.
	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	// Provider callbacks. Unknown call ids get hang-up XML or an immediate close.
	answer := telephony.AnswerWebhookHandler{Service: orch}
	r.POST("/api/calls/answer/:call_id", answer.HandleAnswer)

	stream := telephony.MediaStreamHandler{Service: orch}
	r.GET("/ws/plivo/:call_id", stream.HandleStream)
}

func registerAuthRoutes(r *gin.Engine, h httpapi.Handlers) {
	g := r.Group("/api/auth")
	g.POST("/token", h.Token)
	g.POST("/refresh", h.Refresh)
}

// registerProtectedRoutes requires a bearer token. admin passes every role check;
// rbac.RequireAnyRole() with no roles is admin-only.
func registerProtectedRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	read := rbac.RequireAnyRole(rbac.CanRead...)
	write := rbac.RequireAnyRole(rbac.CanWrite...)
	adminOnly := rbac.RequireAnyRole()

	api := r.Group("/api/calls")
	api.Use(authMW)
	{
		api.POST("/patients", write, h.CreatePatient)
		api.GET("/patients", read, h.ListPatients)
		api.PUT("/patients/:id", write, h.UpdatePatient)
		api.DELETE("/patients/:id", adminOnly, h.DeletePatient)
		api.GET("/patients/:id/calls", read, h.PatientCalls)

		api.POST("/initiate", write, h.InitiateCall)

		api.GET("/calls", read, h.ListCalls)
		api.GET("/calls/:id", read, h.GetCall)
		api.GET("/calls/:id/transcript", read, h.GetTranscript)
		api.GET("/calls/:id/events", read, h.CallEvents)
		api.POST("/calls/:id/reconcile", adminOnly, h.Reconcile)

		api.GET("/stats", read, h.CallStats)
	}
}

// The orchestrator serves both carrier callbacks and the call API.
var (
	_ telephony.AnswerService = (*calls.Orchestrator)(nil)
	_ telephony.MediaService  = (*calls.Orchestrator)(nil)
	_ httpapi.CallService     = (*calls.Orchestrator)(nil)
)
