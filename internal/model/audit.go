package model

import (
    "encoding/json"
    "time"
)

// AuditLog represents a row in the append-only `audit_logs` table.
type AuditLog struct {
    ID         uint64          `json:"id"`
    ActorID    *uint64         `json:"actor_id,omitempty"`
    Action     string          `json:"action"`
    EntityType string          `json:"entity_type"`
    EntityID   *uint64         `json:"entity_id,omitempty"`
    Changes    json.RawMessage `json:"changes,omitempty"`
    IPAddress  string          `json:"ip_address,omitempty"`
    CreatedAt  time.Time       `json:"created_at"`
}
