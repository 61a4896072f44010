package models

import "time"

// AuditLog records every ledger mutation for after-the-fact review. Writes
// are fire-and-forget through the worker pool.
type AuditLog struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"` // "entry", "account", "setting"
	EntityID   *string        `json:"entity_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}
