// Package api provides Cortex's HTTP surface: webhook ingress, connection
// registration, unit CRUD, and run inspection (spec.md §4.9, §6).
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexrun/cortex/pkg/compiler"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/shaper"
	"github.com/cortexrun/cortex/pkg/store"
	"github.com/cortexrun/cortex/pkg/version"
)

// Matcher is the subset of pkg/matcher.Matcher the webhook path needs to
// turn an ingested event into matched, running runs.
type Matcher interface {
	Match(ctx context.Context, event *models.Event) ([]*models.Run, error)
}

// Runtime is the subset of pkg/runtime.Runtime the rerun endpoint needs to
// drive a freshly synthesized run, bypassing Matcher since a rerun targets
// one already-known unit rather than re-evaluating triggers.
type Runtime interface {
	Execute(ctx context.Context, run *models.Run)
}

// LivenessReporter is implemented by Poller and Scheduler: a cheap
// last-tick staleness check, not a full health probe.
type LivenessReporter interface {
	Health() (healthy bool, detail string)
}

// Server wires Store, Shaper, Matcher, Runtime, and Compiler into gin
// routes, grounded on the teacher's pkg/api/handlers.go + server.go gin
// idioms.
type Server struct {
	router    *gin.Engine
	http      *http.Server
	store     *store.Store
	shaper    *shaper.Shaper
	matcher   Matcher
	runtime   Runtime
	compiler  compiler.Client
	poller    LivenessReporter
	scheduler LivenessReporter
}

// NewServer builds a Server with all routes registered. poller and
// scheduler back the health endpoint's liveness checks; either may be nil
// (e.g. in tests that don't run the background loops), in which case the
// health endpoint reports that component as healthy by omission.
func NewServer(s *store.Store, sh *shaper.Shaper, m Matcher, rt Runtime, c compiler.Client, poller, scheduler LivenessReporter) *Server {
	srv := &Server{
		router:    gin.New(),
		store:     s,
		shaper:    sh,
		matcher:   m,
		runtime:   rt,
		compiler:  c,
		poller:    poller,
		scheduler: scheduler,
	}
	srv.router.Use(gin.Recovery())
	srv.setupRoutes()
	return srv
}

// Handler returns the server's http.Handler, for use in tests (httptest)
// and Start.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.health)

	s.router.POST("/api/webhooks/nango", s.handleWebhook)

	connections := s.router.Group("/api/connections", requireUserID())
	connections.POST("", s.createConnection)
	connections.GET("", s.listConnections)
	connections.PATCH("/:id", s.updateConnection)

	units := s.router.Group("/api/cortex/units", requireUserID())
	units.GET("", s.listUnits)
	units.POST("", s.createUnit)
	units.GET("/:id", s.getUnit)
	units.PATCH("/:id/status", s.updateUnitStatus)
	units.DELETE("/:id", s.deleteUnit)
	units.GET("/:id/runs", s.listUnitRuns)

	runs := s.router.Group("/api/cortex/runs", requireUserID())
	runs.GET("", s.listRuns)
	runs.GET("/:id", s.getRun)
	runs.POST("/:id/rerun", s.rerunRun)

	s.router.GET("/api/cortex/metrics", requireUserID(), s.metrics)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// userIDKey is the gin context key requireUserID stores the caller's user
// id under, after validating the x-user-id header is present.
const userIDKey = "cortex.user_id"

// requireUserID rejects requests missing the x-user-id header with 401,
// matching spec.md §6.3: "All require x-user-id. 401 if absent."
func requireUserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("x-user-id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "x-user-id header required"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	s, _ := v.(string)
	return s
}

// health implements GET /api/health: store reachability plus poller and
// scheduler liveness, reported "degraded" (but still 200) if any
// component is unhealthy so the caller can distinguish a sick instance
// from one that is unreachable entirely.
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()

	resp := models.HealthResponse{
		Status:    "ok",
		Version:   version.Full(),
		Store:     componentHealth(s.storeHealth(ctx)),
		Poller:    livenessHealth(s.poller),
		Scheduler: livenessHealth(s.scheduler),
	}
	if !resp.Store.Healthy || !resp.Poller.Healthy || !resp.Scheduler.Healthy {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) storeHealth(ctx context.Context) (bool, string) {
	if err := s.store.Relational.Ping(ctx); err != nil {
		return false, "relational store: " + err.Error()
	}
	if err := s.store.Ephemeral.Ping(ctx); err != nil {
		return false, "ephemeral store: " + err.Error()
	}
	return true, ""
}

func componentHealth(healthy bool, detail string) models.ComponentHealth {
	return models.ComponentHealth{Healthy: healthy, Detail: detail}
}

func livenessHealth(r LivenessReporter) models.ComponentHealth {
	if r == nil {
		return models.ComponentHealth{Healthy: true}
	}
	healthy, detail := r.Health()
	return models.ComponentHealth{Healthy: healthy, Detail: detail}
}

// handleWebhook implements POST /api/webhooks/nango (spec.md §6.1): sync
// deliveries are acknowledged 202 immediately and processed async through
// the Shaper; auth deliveries attempt connection auto-registration.
func (s *Server) handleWebhook(c *gin.Context) {
	var body struct {
		Type            string                 `json:"type"`
		ConnectionID    string                 `json:"connectionId"`
		ProviderConfig  string                 `json:"providerConfigKey"`
		Model           string                 `json:"model"`
		SyncName        string                 `json:"syncName"`
		ResponseResults shaper.ResponseResults `json:"responseResults"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch body.Type {
	case "sync":
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.shaper.HandleWebhook(ctx, shaper.WebhookPayload{
				ConnectionID:    body.ConnectionID,
				Model:           body.Model,
				SyncName:        body.SyncName,
				ResponseResults: body.ResponseResults,
			}); err != nil {
				slog.Warn("webhook processing failed", "connection_id", body.ConnectionID, "error", err)
			}
		}()
	case "auth":
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		if body.ProviderConfig == "" || body.ConnectionID == "" {
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		owner, ok := s.shaper.ResolveOwner(ctx, body.ConnectionID)
		if !ok {
			slog.Info("auth webhook dropped, no resolvable owner", "connection_id", body.ConnectionID)
			break
		}
		if err := s.store.Relational.SaveConnection(ctx, &models.Connection{
			ID:           store.NewID("conn"),
			UserID:       owner,
			Provider:     body.ProviderConfig,
			ConnectionID: body.ConnectionID,
			Enabled:      true,
		}); err != nil {
			slog.Warn("auth webhook auto-registration failed", "connection_id", body.ConnectionID, "error", err)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown webhook type"})
	}
}
