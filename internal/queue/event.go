// Package queue defines the events emitted after domain operations commit
// and the sinks that deliver them: RabbitMQ when a broker is configured,
// in-process otherwise.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/election-voting-portal/internal/model"
)

// Queue names.
const (
	AuditQueueName = "audit.events"
	OTPQueueName   = "notifications.otp"
)

// Audit actions.
const (
	ActionUserRegistered    = "user.registered"
	ActionUserVerified      = "user.verified"
	ActionUserLogin         = "user.login"
	ActionUserLocked        = "user.locked"
	ActionUserPasswordReset = "user.password_reset"
	ActionUserUpdated       = "user.updated"
	ActionUserDeleted       = "user.deleted"
	ActionElectionCreated   = "election.created"
	ActionElectionUpdated   = "election.updated"
	ActionElectionDeleted   = "election.deleted"
	ActionElectionActivated = "election.activated"
	ActionElectionCompleted = "election.completed"
	ActionCandidateCreated  = "candidate.created"
	ActionCandidateUpdated  = "candidate.updated"
	ActionCandidateDeleted  = "candidate.deleted"
	ActionVoteCast          = "vote.cast"
)

// Entity types.
const (
	EntityUser      = "user"
	EntityElection  = "election"
	EntityCandidate = "candidate"
	EntityVote      = "vote"
)

// AuditEvent is published after an operation commits.  It carries enough
// to write an audit_logs row without querying the primary database.
type AuditEvent struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   *uint64        `json:"entity_id,omitempty"`
	ActorID    *uint64        `json:"actor_id,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditEvent builds an event; zero ids are left out.
func NewAuditEvent(action, entityType string, entityID, actorID uint64) AuditEvent {
	ev := AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		OccurredAt: time.Now().UTC(),
	}
	if entityID != 0 {
		ev.EntityID = &entityID
	}
	if actorID != 0 {
		ev.ActorID = &actorID
	}
	return ev
}

// With returns a copy of ev with the given change details and client IP.
func (ev AuditEvent) With(changes map[string]any, ip string) AuditEvent {
	ev.Changes = changes
	ev.IPAddress = ip
	return ev
}

// Log converts ev into the row stored in audit_logs.
func (ev AuditEvent) Log() model.AuditLog {
	a := model.AuditLog{
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		IPAddress:  ev.IPAddress,
		CreatedAt:  ev.OccurredAt,
	}
	if len(ev.Changes) > 0 {
		if b, err := json.Marshal(ev.Changes); err == nil {
			a.Changes = b
		}
	}
	return a
}

// OTPNotification asks the mailer to deliver a one-time code.
type OTPNotification struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name,omitempty"`
	Purpose   model.OTPPurpose `json:"purpose"`
	Code      string           `json:"code"`
	ExpiresAt time.Time        `json:"expires_at"`
}
