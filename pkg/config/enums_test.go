package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitStatusIsValid(t *testing.T) {
	tests := []struct {
		name   string
		status UnitStatus
		valid  bool
	}{
		{"active", UnitStatusActive, true},
		{"paused", UnitStatusPaused, true},
		{"disabled", UnitStatusDisabled, true},
		{"invalid", UnitStatus("invalid"), false},
		{"empty", UnitStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
		})
	}
}

func TestTriggerTypeIsValid(t *testing.T) {
	tests := []struct {
		name    string
		trigger TriggerType
		valid   bool
	}{
		{"event", TriggerTypeEvent, true},
		{"schedule", TriggerTypeSchedule, true},
		{"manual", TriggerTypeManual, true},
		{"invalid", TriggerType("invalid"), false},
		{"empty", TriggerType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.trigger.IsValid())
		})
	}
}

func TestConditionOpIsValid(t *testing.T) {
	tests := []struct {
		name  string
		op    ConditionOp
		valid bool
	}{
		{"eq", OpEq, true},
		{"neq", OpNeq, true},
		{"gt", OpGt, true},
		{"gte", OpGte, true},
		{"lt", OpLt, true},
		{"lte", OpLte, true},
		{"contains", OpContains, true},
		{"in", OpIn, true},
		{"exists", OpExists, true},
		{"invalid", ConditionOp("matches"), false},
		{"empty", ConditionOp(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.op.IsValid())
		})
	}
}

func TestActionTypeIsValid(t *testing.T) {
	tests := []struct {
		name   string
		action ActionType
		valid  bool
	}{
		{"wait", ActionTypeWait, true},
		{"tool", ActionTypeTool, true},
		{"llm", ActionTypeLLM, true},
		{"invalid", ActionType("invalid"), false},
		{"empty", ActionType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.action.IsValid())
		})
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   RunStatus
		terminal bool
	}{
		{"pending", RunStatusPending, false},
		{"running", RunStatusRunning, false},
		{"waiting", RunStatusWaiting, false},
		{"success", RunStatusSuccess, true},
		{"failed", RunStatusFailed, true},
		{"cancelled", RunStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}
