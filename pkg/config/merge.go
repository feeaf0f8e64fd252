package config

// mergeProviders merges built-in and user-defined provider specs.
// User-defined providers override built-in providers with the same name.
func mergeProviders(builtinProviders map[string]ProviderSpec, userProviders map[string]ProviderSpec) map[string]*ProviderSpec {
	result := make(map[string]*ProviderSpec, len(builtinProviders)+len(userProviders))

	for name, spec := range builtinProviders {
		specCopy := spec
		result[name] = &specCopy
	}

	for name, spec := range userProviders {
		specCopy := spec
		result[name] = &specCopy
	}

	return result
}

// mergeTools merges built-in and user-defined tool specs. User-defined
// tools override a built-in entry sharing the same provider.action key.
func mergeTools(builtinTools []ToolSpec, userTools []ToolSpec) []ToolSpec {
	byKey := make(map[string]ToolSpec, len(builtinTools)+len(userTools))
	order := make([]string, 0, len(builtinTools)+len(userTools))

	for _, tool := range builtinTools {
		key := toolKey(tool.Provider, tool.Action)
		byKey[key] = tool
		order = append(order, key)
	}

	for _, tool := range userTools {
		key := toolKey(tool.Provider, tool.Action)
		if _, exists := byKey[key]; !exists {
			order = append(order, key)
		}
		byKey[key] = tool
	}

	result := make([]ToolSpec, 0, len(order))
	for _, key := range order {
		result = append(result, byKey[key])
	}
	return result
}

// mergeLLMProviders merges built-in and user-defined LLM provider
// configurations. User-defined providers override built-in providers with
// the same name.
func mergeLLMProviders(builtinProviders map[string]LLMProviderConfig, userProviders map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	result := make(map[string]*LLMProviderConfig, len(builtinProviders)+len(userProviders))

	for name, provider := range builtinProviders {
		providerCopy := provider
		result[name] = &providerCopy
	}

	for name, provider := range userProviders {
		providerCopy := provider
		result[name] = &providerCopy
	}

	return result
}
