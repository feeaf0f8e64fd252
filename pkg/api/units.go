package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexrun/cortex/pkg/compiler"
	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// listUnits handles GET /api/cortex/units.
func (s *Server) listUnits(c *gin.Context) {
	units, err := s.store.Relational.ListUnits(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.UnitsResponse{Units: units})
}

// createUnit handles POST /api/cortex/units (spec.md §6.3): accepts
// either a raw {prompt} routed through the Compiler, or an already
// structured {when, then, if?} request taken directly.
func (s *Server) createUnit(c *gin.Context) {
	var req models.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	compileReq := compiler.CompileRequest{Owner: userID(c), Name: req.Name, Prompt: req.Prompt}
	if req.When != nil {
		compileReq.RawWhen = req.When.Source + " " + req.When.Event
	}
	for _, then := range req.Then {
		compileReq.RawThen = then.Prompt
		if then.Input != nil {
			if s, ok := then.Input.(string); ok {
				compileReq.RawThen = s
			}
		}
		break
	}

	unit, err := s.compiler.Compile(c.Request.Context(), compileReq)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A structured request's When/If/Then override whatever the compiler
	// produced from the (possibly empty) raw fields — the compiler's job
	// for a structured request is only to allocate id/timestamps.
	if req.When != nil {
		unit.When = *req.When
	}
	if req.If != nil {
		unit.If = req.If
	}
	if req.Then != nil {
		unit.Then = req.Then
	}

	if err := s.store.SaveUnit(c.Request.Context(), unit); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, unit)
}

// getUnit handles GET /api/cortex/units/{id}.
func (s *Server) getUnit(c *gin.Context) {
	unit, ok := s.loadOwnedUnit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, unit)
}

// updateUnitStatus handles PATCH /api/cortex/units/{id}/status.
func (s *Server) updateUnitStatus(c *gin.Context) {
	unit, ok := s.loadOwnedUnit(c)
	if !ok {
		return
	}

	var req models.UpdateUnitStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case config.UnitStatusActive, config.UnitStatusPaused, config.UnitStatusDisabled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	unit.Status = req.Status
	unit.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveUnit(c.Request.Context(), unit); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, unit)
}

// deleteUnit handles DELETE /api/cortex/units/{id}. Deletion cascades to
// in-flight runs, cancelling them (spec.md §5).
func (s *Server) deleteUnit(c *gin.Context) {
	unit, ok := s.loadOwnedUnit(c)
	if !ok {
		return
	}

	if err := s.store.Relational.CancelRunsForUnit(c.Request.Context(), unit.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Relational.DeleteUnit(c.Request.Context(), unit.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// listUnitRuns handles GET /api/cortex/units/{id}/runs.
func (s *Server) listUnitRuns(c *gin.Context) {
	unit, ok := s.loadOwnedUnit(c)
	if !ok {
		return
	}

	runs, err := s.store.Relational.ListRuns(c.Request.Context(), models.RunFilters{UnitID: unit.ID, Limit: 50})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.RunsResponse{Runs: runs})
}

// loadOwnedUnit fetches the unit named by the :id param, writing a 404 if
// missing and a 403-as-404 (not revealing existence) if owned by another
// user, matching spec.md §6.3's "404 if the resource is not found."
func (s *Server) loadOwnedUnit(c *gin.Context) (*models.Unit, bool) {
	unit, err := s.store.Relational.GetUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrUnitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unit not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	if unit.Owner != userID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unit not found"})
		return nil, false
	}
	return unit, true
}
