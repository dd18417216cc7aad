package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vorpalhq/vorpal/internal/canonical"
	"github.com/vorpalhq/vorpal/internal/models"
)

// ComputeEventHash returns the hex SHA-256 of the event's canonical hash
// payload. The payload covers every field whose tampering must be
// detectable, including previous_hash so the chain link itself is sealed.
// Fields absent from the event serialize as null, matching the stored wire
// shape, so recomputation at verify time is byte-exact.
func ComputeEventHash(ev *models.AuditEvent) (string, error) {
	if ev == nil {
		return "", fmt.Errorf("nil event")
	}
	var actorID interface{}
	if ev.Actor.ID != "" {
		actorID = ev.Actor.ID
	}
	var resourceType, resourceID interface{}
	if ev.Resource != nil {
		resourceType = ev.Resource.Type
		if ev.Resource.ID != "" {
			resourceID = ev.Resource.ID
		}
	}
	var prev interface{}
	if ev.PreviousHash != "" {
		prev = ev.PreviousHash
	}
	details := map[string]interface{}{}
	if ev.Details != nil {
		details = ev.Details
	}

	payload := map[string]interface{}{
		"id":            ev.ID,
		"event_type":    ev.EventType,
		"action":        ev.Action,
		"actor_id":      actorID,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"details":       details,
		"timestamp":     ev.Timestamp.UTC().Format(canonical.TimeFormat),
		"previous_hash": prev,
	}
	serialized, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize event: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}
