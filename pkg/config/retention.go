package config

import "time"

// RetentionConfig holds retention settings. Only EventTTL and DedupeTTL
// are read at runtime (by store.NewWithRetention); the other fields are
// merged and validated at load time but no component reads them.
type RetentionConfig struct {
	// RunRetentionDays is how many days terminal runs are to be kept. It is
	// validated at load time; no component deletes terminal runs.
	RunRetentionDays int `yaml:"run_retention_days"`

	// EventTTL bounds how long a raw ingested event is kept in the
	// ephemeral store after shaping (spec.md §3).
	EventTTL time.Duration `yaml:"event_ttl"`

	// DedupeTTL bounds how long a `dedupe:{key}` marker blocks a repeat
	// event from re-matching (spec.md §4.1/§4.5).
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`

	// WebhookDedupeTTL is a webhook-specific dedupe TTL setting. No
	// component reads it: pkg/shaper sets its webhook dedup markers with
	// its own fixed 300s TTL.
	WebhookDedupeTTL time.Duration `yaml:"webhook_dedupe_ttl"`

	// ConnectionOwnerCacheTTL is a connection-id -> owner-id cache TTL
	// setting. No component reads it: pkg/shaper caches owners with its own
	// fixed 1h TTL.
	ConnectionOwnerCacheTTL time.Duration `yaml:"connection_owner_cache_ttl"`

	// ShaperStateTTL is a shaper prior-state TTL setting. No component
	// reads it: pkg/shaper uses fixed per-kind TTLs (kindStateTTL).
	ShaperStateTTL time.Duration `yaml:"shaper_state_ttl"`

	// CleanupInterval is a cleanup-loop interval setting. It is validated
	// at load time; no cleanup loop exists to use it.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		RunRetentionDays:        90,
		EventTTL:                24 * time.Hour,
		DedupeTTL:               72 * time.Hour,
		WebhookDedupeTTL:        72 * time.Hour,
		ConnectionOwnerCacheTTL: 5 * time.Minute,
		ShaperStateTTL:          7 * 24 * time.Hour,
		CleanupInterval:         12 * time.Hour,
	}
}
