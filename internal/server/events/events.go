// Package events publishes release lifecycle events for downstream
// consumers (notifications, audit).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	ReleaseSaved        Type = "release.saved"
	ReleaseDeleted      Type = "release.deleted"
	SignatureRequested  Type = "signature.requested"
	SignatureCancelled  Type = "signature.cancelled"
	SignatureReconciled Type = "signature.reconciled"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	ReleaseID  string    `json:"releaseId,omitempty"`
	RequestIDs []string  `json:"requestIds,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, userID, releaseID string, requestIDs ...string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		ReleaseID:  releaseID,
		RequestIDs: requestIDs,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
