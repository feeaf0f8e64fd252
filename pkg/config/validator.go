package config

import (
	"fmt"
	"os"
)

// Validator validates a loaded Config comprehensively, with clear,
// component-scoped error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, fail-fast at the first
// error. Order matters: providers must be valid before tools (tools
// reference providers), LLM providers are checked after them since nothing
// else depends on them, and defaults come last.
func (v *Validator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}
	if err := v.validateTools(); err != nil {
		return fmt.Errorf("tool validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.PollerInterval <= 0 {
		return fmt.Errorf("poller_interval must be positive, got %v", q.PollerInterval)
	}
	if q.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler_interval must be positive, got %v", q.SchedulerInterval)
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive, got %v", q.GracefulShutdownTimeout)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.RunRetentionDays < 1 {
		return fmt.Errorf("run_retention_days must be at least 1, got %d", r.RunRetentionDays)
	}
	if r.EventTTL <= 0 {
		return fmt.Errorf("event_ttl must be positive, got %v", r.EventTTL)
	}
	if r.DedupeTTL <= 0 {
		return fmt.Errorf("dedupe_ttl must be positive, got %v", r.DedupeTTL)
	}
	if r.WebhookDedupeTTL <= 0 {
		return fmt.Errorf("webhook_dedupe_ttl must be positive, got %v", r.WebhookDedupeTTL)
	}
	if r.ConnectionOwnerCacheTTL <= 0 {
		return fmt.Errorf("connection_owner_cache_ttl must be positive, got %v", r.ConnectionOwnerCacheTTL)
	}
	if r.ShaperStateTTL <= 0 {
		return fmt.Errorf("shaper_state_ttl must be positive, got %v", r.ShaperStateTTL)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}
	return nil
}

func (v *Validator) validateProviders() error {
	for name, spec := range v.cfg.ProviderRegistry.GetAll() {
		if spec.Resource == "" {
			return NewValidationError("provider", name, "resource", fmt.Errorf("required"))
		}
		if spec.EntityShaper == "" {
			return NewValidationError("provider", name, "entity_shaper", fmt.Errorf("required"))
		}
	}
	return nil
}

func (v *Validator) validateTools() error {
	for key, tool := range v.cfg.ToolRegistry.GetAll() {
		if !v.cfg.ProviderRegistry.Has(tool.Provider) {
			return NewValidationError("tool", key, "provider", fmt.Errorf("provider '%s' not found", tool.Provider))
		}
	}
	return nil
}

func (v *Validator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if provider.Model == "" {
			return NewValidationError("llm_provider", name, "model", fmt.Errorf("required"))
		}
		if provider.Timeout <= 0 {
			return NewValidationError("llm_provider", name, "timeout", fmt.Errorf("must be positive"))
		}
		if provider.APIKeyEnv != "" {
			if value := os.Getenv(provider.APIKeyEnv); value == "" {
				return NewValidationError("llm_provider", name, "api_key_env", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
			}
		}
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return nil
	}
	if d.MaxActionsPerUnit < 0 {
		return NewValidationError("defaults", "", "max_actions_per_unit", fmt.Errorf("must be non-negative"))
	}
	if d.RunTimeout != "" {
		if _, err := ParseDuration(d.RunTimeout); err != nil {
			return NewValidationError("defaults", "", "run_timeout", err)
		}
	}
	return nil
}
