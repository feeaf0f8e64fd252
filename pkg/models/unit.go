package models

import (
	"time"

	"github.com/cortexrun/cortex/pkg/config"
)

// Unit is a compiled automation rule: "when X, if Y, do Z".
type Unit struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Name      string           `json:"name"`
	Raw       RawUnit          `json:"raw"`
	When      Trigger          `json:"when"`
	If        []Condition      `json:"if"`
	Then      []Action         `json:"then"`
	Status    config.UnitStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RawUnit preserves the free-text fields the Compiler was given, so a unit
// can be shown back to its owner and re-compiled if edited.
type RawUnit struct {
	When string `json:"when"`
	If   string `json:"if,omitempty"`
	Then string `json:"then"`
}

// Trigger is the tagged `when` variant of a Unit. Only Type=event is
// considered by the core; schedule and manual are accepted and stored but
// not yet matched against (spec.md §3).
type Trigger struct {
	Type   config.TriggerType `json:"type"`
	Source string             `json:"source,omitempty"` // event trigger: normalized provider
	Event  string             `json:"event,omitempty"`  // event trigger: semantic event name
	Cron   string             `json:"cron,omitempty"`   // schedule trigger
}

// Condition is one entry in a Unit's `if` list, evaluated against an
// event's payload by dotted-path lookup.
type Condition struct {
	Field string            `json:"field"`
	Op    config.ConditionOp `json:"op"`
	Value any               `json:"value"`
}

// CreateUnitRequest is the body of POST /api/cortex/units. Exactly one of
// Prompt or the structured trigger/action fields should be set; if Prompt
// is set the request is routed through the Compiler (or the lightweight
// fallback compiler) instead of being taken as already-structured.
type CreateUnitRequest struct {
	Prompt string      `json:"prompt,omitempty"`
	Name   string      `json:"name,omitempty"`
	When   *Trigger    `json:"when,omitempty"`
	If     []Condition `json:"if,omitempty"`
	Then   []Action    `json:"then,omitempty"`
}

// UpdateUnitStatusRequest is the body of PATCH /api/cortex/units/{id}/status.
type UpdateUnitStatusRequest struct {
	Status config.UnitStatus `json:"status"`
}

// UnitsResponse wraps a list of units for listing endpoints.
type UnitsResponse struct {
	Units []*Unit `json:"units"`
}
