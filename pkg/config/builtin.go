package config

import (
	"sync"
	"time"
)

// BuiltinConfig holds built-in defaults for providers, tools, and LLM
// backends shipped with Cortex so a fresh install has a working set of
// integrations before any user YAML is applied.
type BuiltinConfig struct {
	Providers    map[string]ProviderSpec
	Tools        []ToolSpec
	LLMProviders map[string]LLMProviderConfig
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration
// (thread-safe, lazy-initialized).
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Providers:    initBuiltinProviders(),
		Tools:        initBuiltinTools(),
		LLMProviders: initBuiltinLLMProviders(),
	}
}

func initBuiltinProviders() map[string]ProviderSpec {
	return map[string]ProviderSpec{
		"gmail": {
			Name:     "gmail",
			Resource: "messages",
			EventMap: map[string]string{
				"message": "email.received",
			},
			EntityShaper: "email",
		},
		"google-calendar": {
			Name:     "google-calendar",
			Resource: "events",
			EventMap: map[string]string{
				"event": "calendar.event_upcoming",
			},
			EntityShaper: "calendar",
		},
		"salesforce": {
			Name:     "salesforce",
			Resource: "leads",
			EventMap: map[string]string{
				"lead":        "lead.created",
				"opportunity": "opportunity.stage_changed",
			},
			EntityShaper: "lead",
		},
	}
}

func initBuiltinTools() []ToolSpec {
	return []ToolSpec{
		{Provider: "gmail", Action: "send_email", Description: "Send an email via Gmail"},
		{Provider: "gmail", Action: "create_draft", Description: "Create a Gmail draft"},
		{Provider: "google-calendar", Action: "create_event", Description: "Create a calendar event"},
		{Provider: "salesforce", Action: "update_lead", Description: "Update a Salesforce lead"},
		{Provider: "salesforce", Action: "create_task", Description: "Create a Salesforce task"},
	}
}

func initBuiltinLLMProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		"default": {
			Model:     "gemini-2.5-pro",
			APIKeyEnv: "GOOGLE_API_KEY",
			Timeout:   30 * time.Second,
		},
	}
}
