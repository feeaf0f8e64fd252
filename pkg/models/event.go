package models

import "time"

// Event is an observed fact at a provider: a single webhook delivery or a
// single item from a poller pull, normalized into Cortex's own shape.
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Source    string         `json:"source"` // normalized provider: gmail, google-calendar, salesforce, ...
	Event     string         `json:"event"`  // semantic name, e.g. email_received, lead_stage_changed
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
	Meta      EventMeta      `json:"meta"`
}

// EventMeta carries intake bookkeeping that is not itself part of the
// observed fact.
type EventMeta struct {
	DedupeKey string `json:"dedupe_key"`
}

// CreateEventRequest is accepted by the webhook/poller ingress paths
// before an Event has been assigned an id by the EventShaper.
type CreateEventRequest struct {
	UserID  string         `json:"user_id"`
	Source  string         `json:"source"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	Meta    EventMeta      `json:"meta"`
}

// EventsResponse contains a list of events, used by debugging/listing
// endpoints.
type EventsResponse struct {
	Events []*Event `json:"events"`
}
