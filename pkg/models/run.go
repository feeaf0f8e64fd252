package models

import (
	"time"

	"github.com/cortexrun/cortex/pkg/config"
)

// Run is one execution of a Unit caused by an Event.
type Run struct {
	ID          string             `json:"id"`
	UnitID      string             `json:"unit_id"`
	EventID     string             `json:"event_id"`
	UserID      string             `json:"user_id"`
	Status      config.RunStatus   `json:"status"`
	Step        int                `json:"step"`
	Context     map[string]any     `json:"context"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	ResumeAt    *time.Time         `json:"resume_at,omitempty"`
	Error       string             `json:"error,omitempty"`

	// OriginalEventPayload is a preserved copy of the triggering event's
	// payload, kept independent of context mutation so rerun can
	// reconstruct a faithful new run (spec.md §3, §4.6).
	OriginalEventPayload map[string]any `json:"original_event_payload,omitempty"`
}

// RunStep is an audit row logged at each step boundary of a Run.
type RunStep struct {
	RunID        string                 `json:"run_id"`
	StepIndex    int                    `json:"step_index"`
	ActionConfig Action                 `json:"action_config"`
	Status       config.RunStepStatus   `json:"status"`
	Result       any                    `json:"result,omitempty"`
	Error        string                 `json:"error,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// RunFilters narrows a run listing query.
type RunFilters struct {
	UnitID string `json:"unit_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RunsResponse wraps a list of runs for listing endpoints.
type RunsResponse struct {
	Runs []*Run `json:"runs"`
}

// RunDetailResponse is the body of GET /api/cortex/runs/{id}: the run plus
// its full step audit trail.
type RunDetailResponse struct {
	Run   *Run       `json:"run"`
	Steps []*RunStep `json:"steps"`
}
