package config

// Config is the umbrella configuration object returned by Initialize() and
// threaded through every other Cortex component.
type Config struct {
	configDir string

	Defaults  *Defaults
	Queue     *QueueConfig
	Retention *RetentionConfig

	ProviderRegistry    *ProviderRegistry
	ToolRegistry        *ToolRegistry
	LLMProviderRegistry *LLMProviderRegistry
	MCPServerRegistry   *MCPServerRegistry
}

// ConfigStats holds counts useful for startup logging.
type ConfigStats struct {
	Providers    int
	Tools        int
	LLMProviders int
	MCPServers   int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		Providers:    len(c.ProviderRegistry.GetAll()),
		Tools:        len(c.ToolRegistry.GetAll()),
		LLMProviders: c.LLMProviderRegistry.Len(),
		MCPServers:   c.MCPServerRegistry.Len(),
	}
}

// ConfigDir returns the configuration directory path this Config was
// loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a ProviderSpec by name.
func (c *Config) GetProvider(name string) (*ProviderSpec, error) {
	return c.ProviderRegistry.Get(name)
}

// GetTool retrieves a ToolSpec by provider and action.
func (c *Config) GetTool(provider, action string) (*ToolSpec, error) {
	return c.ToolRegistry.Get(provider, action)
}

// GetLLMProvider retrieves an LLM provider configuration by name.
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// GetMCPServer retrieves the MCP server configuration fronting provider.
func (c *Config) GetMCPServer(provider string) (*MCPServerSpec, error) {
	return c.MCPServerRegistry.Get(provider)
}
