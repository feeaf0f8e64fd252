package models

import "time"

// Connection is a user's link to an external provider account, the unit
// of work the Poller iterates over and the record webhook auth events
// register against.
type Connection struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     string     `json:"provider"`
	ConnectionID string     `json:"connection_id"` // the provider gateway's own connection identifier
	Enabled      bool       `json:"enabled"`
	LastPollAt   *time.Time `json:"last_poll_at,omitempty"`
	ErrorCount   int        `json:"error_count"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CreateConnectionRequest is the body of POST /api/connections.
type CreateConnectionRequest struct {
	Provider     string `json:"provider"`
	ConnectionID string `json:"connection_id"`
}

// UpdateConnectionRequest is the body of PATCH /api/connections/{id},
// used to re-enable a connection that auto-disabled after repeated
// poller failures (spec.md §7, scenario S5).
type UpdateConnectionRequest struct {
	Enabled bool `json:"enabled"`
}

// ConnectionsResponse wraps a list of connections for listing endpoints.
type ConnectionsResponse struct {
	Connections []*Connection `json:"connections"`
}
