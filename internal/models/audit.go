package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActorType identifies what kind of principal performed an action.
type ActorType string

const (
	ActorTypeUser      ActorType = "user"
	ActorTypeSystem    ActorType = "system"
	ActorTypeAPIKey    ActorType = "api_key"
	ActorTypeAgent     ActorType = "agent"
	ActorTypeScheduler ActorType = "scheduler"
)

func (t ActorType) Valid() bool {
	switch t {
	case ActorTypeUser, ActorTypeSystem, ActorTypeAPIKey, ActorTypeAgent, ActorTypeScheduler:
		return true
	}
	return false
}

// Actor is the already-resolved identity that performed an action. Only the
// type is required; id and display name are best effort.
type Actor struct {
	ID          string    `json:"id,omitempty"`
	Type        ActorType `json:"type"`
	DisplayName string    `json:"display_name,omitempty"`
}

// Resource identifies what an audit event affected.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// AuditEvent is one immutable entry in the tamper-evident ledger. EventHash
// covers the event's own fields plus PreviousHash, chaining it to the
// preceding event in the same scope; any post-write mutation invalidates the
// hash and is detectable by re-verification.
type AuditEvent struct {
	ID           string                 `json:"id"`
	SystemID     *string                `json:"system_id,omitempty"` // nil for platform-level events
	EventType    string                 `json:"event_type"`          // dotted classifier, e.g. "policy.evaluated"
	Actor        Actor                  `json:"actor"`
	Action       string                 `json:"action"`
	Resource     *Resource              `json:"resource,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	PreviousHash string                 `json:"previous_hash,omitempty"`
	EventHash    string                 `json:"event_hash"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ChainScope returns the logical chain this event links within: the system
// id for system-scoped events, or the empty string for the platform chain.
func (e *AuditEvent) ChainScope() string {
	if e.SystemID == nil {
		return ""
	}
	return *e.SystemID
}

// VerificationReport is the structured outcome of a chain verification run.
// Integrity faults are reported as data, never as errors, so a compromised
// ledger stays fully inspectable.
type VerificationReport struct {
	Verified            bool    `json:"verified"`
	TotalEvents         int     `json:"total_events"`
	ValidEvents         int     `json:"valid_events"`
	InvalidEvents       int     `json:"invalid_events"`
	FirstInvalidEventID *string `json:"first_invalid_event_id,omitempty"`
	Message             string  `json:"message"`
}

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on duplicate unique keys (policy name, control
// id, existing system-control assignment).
var ErrConflict = errors.New("conflict")

// NewID returns a freshly generated UUID string.
func NewID() string {
	return uuid.NewString()
}
