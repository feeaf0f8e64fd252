package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// CortexYAMLConfig represents the complete cortex.yaml file structure.
type CortexYAMLConfig struct {
	System     *SystemYAMLConfig        `yaml:"system"`
	Providers  map[string]ProviderSpec  `yaml:"providers"`
	Tools      []ToolSpec               `yaml:"tools"`
	MCPServers map[string]MCPServerSpec `yaml:"mcp_servers"`
	Defaults   *Defaults                `yaml:"defaults"`
	Queue      *QueueConfig             `yaml:"queue"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	DashboardURL string           `yaml:"dashboard_url"`
	Retention    *RetentionConfig `yaml:"retention"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file
// structure.
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Merge built-in + user-defined configuration
//  4. Build in-memory registries
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"providers", stats.Providers,
		"tools", stats.Tools,
		"llm_providers", stats.LLMProviders)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	cortexConfig, err := loader.loadCortexYAML()
	if err != nil {
		return nil, NewLoadError("cortex.yaml", err)
	}

	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	builtin := GetBuiltinConfig()

	providers := mergeProviders(builtin.Providers, cortexConfig.Providers)
	tools := mergeTools(builtin.Tools, cortexConfig.Tools)
	llmProvidersMerged := mergeLLMProviders(builtin.LLMProviders, llmProviders)

	providerRegistry := NewProviderRegistry(providers)
	toolRegistry := NewToolRegistry(tools)
	llmProviderRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	mcpServers := make(map[string]*MCPServerSpec, len(cortexConfig.MCPServers))
	for provider, spec := range cortexConfig.MCPServers {
		spec := spec
		mcpServers[provider] = &spec
	}
	mcpServerRegistry := NewMCPServerRegistry(mcpServers)

	defaults := cortexConfig.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if defaults.MaxActionsPerUnit == 0 {
		defaults.MaxActionsPerUnit = 20
	}

	queueConfig := DefaultQueueConfig()
	if cortexConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, cortexConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	retentionCfg := resolveRetentionConfig(cortexConfig.System)

	return &Config{
		configDir:           configDir,
		Defaults:            defaults,
		Queue:               queueConfig,
		Retention:           retentionCfg,
		ProviderRegistry:    providerRegistry,
		ToolRegistry:        toolRegistry,
		LLMProviderRegistry: llmProviderRegistry,
		MCPServerRegistry:   mcpServerRegistry,
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser surface the clearer error.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadCortexYAML() (*CortexYAMLConfig, error) {
	var cfg CortexYAMLConfig
	cfg.Providers = make(map[string]ProviderSpec)

	if err := l.loadYAML("cortex.yaml", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var cfg LLMProvidersYAMLConfig
	cfg.LLMProviders = make(map[string]LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &cfg); err != nil {
		return nil, err
	}

	return cfg.LLMProviders, nil
}

// resolveRetentionConfig resolves retention configuration from system YAML,
// applying defaults for anything unset.
func resolveRetentionConfig(sys *SystemYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()

	if sys == nil || sys.Retention == nil {
		return cfg
	}

	r := sys.Retention
	if r.RunRetentionDays > 0 {
		cfg.RunRetentionDays = r.RunRetentionDays
	}
	if r.EventTTL > 0 {
		cfg.EventTTL = r.EventTTL
	}
	if r.DedupeTTL > 0 {
		cfg.DedupeTTL = r.DedupeTTL
	}
	if r.WebhookDedupeTTL > 0 {
		cfg.WebhookDedupeTTL = r.WebhookDedupeTTL
	}
	if r.ConnectionOwnerCacheTTL > 0 {
		cfg.ConnectionOwnerCacheTTL = r.ConnectionOwnerCacheTTL
	}
	if r.ShaperStateTTL > 0 {
		cfg.ShaperStateTTL = r.ShaperStateTTL
	}
	if r.CleanupInterval > 0 {
		cfg.CleanupInterval = r.CleanupInterval
	}

	return cfg
}
