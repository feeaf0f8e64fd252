package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// createConnection handles POST /api/connections (spec.md §6.2): upserts
// the connection row and writes the connection-owner cache entry so
// webhook deliveries can resolve the owning user immediately.
func (s *Server) createConnection(c *gin.Context) {
	var req models.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		ID:           store.NewID("conn"),
		UserID:       userID(c),
		Provider:     req.Provider,
		ConnectionID: req.ConnectionID,
		Enabled:      true,
		LastPollAt:   &now,
		ErrorCount:   0,
	}
	if err := s.store.Relational.SaveConnection(c.Request.Context(), conn); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.shaper.RegisterConnectionOwner(c.Request.Context(), req.ConnectionID, userID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, conn)
}

// listConnections handles GET /api/connections.
func (s *Server) listConnections(c *gin.Context) {
	conns, err := s.store.Relational.ListConnections(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.ConnectionsResponse{Connections: conns})
}

// updateConnection handles PATCH /api/connections/{id}: the manual
// re-enable path after a connection auto-disables from repeated poller
// failures (spec.md §7, scenario S5).
func (s *Server) updateConnection(c *gin.Context) {
	conn, err := s.store.Relational.GetConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrConnectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if conn.UserID != userID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}

	var req models.UpdateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Relational.SetConnectionEnabled(c.Request.Context(), conn.ID, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	conn.Enabled = req.Enabled
	c.JSON(http.StatusOK, conn)
}
