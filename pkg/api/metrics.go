package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexrun/cortex/pkg/models"
)

// metrics handles GET /api/cortex/metrics (spec.md §6.5): a coarse,
// unscoped operational snapshot rather than per-user figures.
func (s *Server) metrics(c *gin.Context) {
	ctx := c.Request.Context()

	activeUnits, err := s.store.Relational.CountActiveUnits(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	runsLastHour, err := s.store.Relational.CountRunsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	enabledConnections, err := s.store.Relational.CountEnabledConnections(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.MetricsResponse{
		ActiveUnits:        activeUnits,
		RunsLastHour:       runsLastHour,
		EnabledConnections: enabledConnections,
	})
}
