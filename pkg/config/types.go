package config

// ProviderSpec describes one normalized external provider (e.g. "gmail",
// "google-calendar", "salesforce") and unifies what were three parallel
// provider-mapping switches in the source design: the Poller uses Resource
// to know what to fetch and EntityShaper to pick the shaper kind that
// classifies fetched records. The EventShaper's webhook path does not read
// this registry (it routes by the payload's model name), and no component
// reads EventMap.
type ProviderSpec struct {
	// Name is the normalized provider identifier used in connection records
	// and unit trigger filters.
	Name string `yaml:"name" validate:"required"`

	// Resource is what the Poller fetches for this provider, e.g.
	// "messages", "events", "leads", "opportunities".
	Resource string `yaml:"resource" validate:"required"`

	// EventMap maps a lightweight item-shape hint (e.g. a webhook topic, or
	// a field present in a polled record) to an event name. It is loaded
	// into the registry; no component reads it.
	EventMap map[string]string `yaml:"event_map,omitempty"`

	// EntityShaper names the shaper.Kind this provider's raw payloads route
	// through in pkg/shaper.
	EntityShaper string `yaml:"entity_shaper" validate:"required"`
}

// ToolSpec describes one callable action a provider exposes to `tool`
// actions in a unit's `then` list. The static map this builds is checked
// at both config validation time and unit compile time.
type ToolSpec struct {
	Provider    string `yaml:"provider" validate:"required"`
	Action      string `yaml:"action" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// Defaults holds system-wide fallbacks applied when a unit or connection
// omits an optional field.
type Defaults struct {
	// RunTimeout is a per-run timeout setting in ParseDuration form. It is
	// checked to parse at load time; no component enforces it, so runs are
	// never failed for running too long.
	RunTimeout string `yaml:"run_timeout,omitempty"`

	// MaxActionsPerUnit is a cap on a unit's `then` list length (default
	// 20). It is validated at load time; unit saving does not check it.
	MaxActionsPerUnit int `yaml:"max_actions_per_unit,omitempty" validate:"omitempty,min=1"`
}
