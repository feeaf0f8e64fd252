package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/store"
)

// listRuns handles GET /api/cortex/runs, scoped to the caller's own runs.
func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.Relational.ListRuns(c.Request.Context(), models.RunFilters{UserID: userID(c), Limit: 50})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.RunsResponse{Runs: runs})
}

// getRun handles GET /api/cortex/runs/{id}, returning the run plus its
// full step audit trail (spec.md §6.4).
func (s *Server) getRun(c *gin.Context) {
	run, ok := s.loadOwnedRun(c)
	if !ok {
		return
	}

	steps, err := s.store.Relational.ListRunSteps(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.RunDetailResponse{Run: run, Steps: steps})
}

// rerunRun handles POST /api/cortex/runs/{id}/rerun: synthesizes a new run
// against the same unit, reusing the original triggering event's payload,
// and drives it through Runtime directly rather than re-matching triggers
// (spec.md §6.4 rerun scenario).
func (s *Server) rerunRun(c *gin.Context) {
	orig, payload, err := s.store.GetRunForRerun(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRunNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		case errors.Is(err, store.ErrRerunPayloadMissing):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if orig.UserID != userID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	run := &models.Run{
		ID:                   store.NewID("run"),
		UnitID:               orig.UnitID,
		EventID:              "rerun_" + orig.EventID,
		UserID:               orig.UserID,
		Status:               config.RunStatusPending,
		Step:                 0,
		Context:              map[string]any{"payload": payload},
		StartedAt:            time.Now().UTC(),
		OriginalEventPayload: payload,
	}

	if err := s.store.SaveRun(c.Request.Context(), run); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.runtime.Execute(c.Request.Context(), run)
	c.JSON(http.StatusOK, run)
}

// loadOwnedRun fetches the run named by the :id param, writing a 404 if
// missing or owned by another user.
func (s *Server) loadOwnedRun(c *gin.Context) (*models.Run, bool) {
	run, err := s.store.Relational.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	if run.UserID != userID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}
	return run, true
}
