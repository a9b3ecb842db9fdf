package events

import (
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_READY_FOR_XML").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Dialog lifecycle event codes consumed by the downstream XML renderer.
const (
	TypeSessionReadyForXML = "SESSION_READY_FOR_XML"
	TypeSessionCompleted   = "SESSION_COMPLETED"
)

// NewSessionReadyForXML signals that a session has all parameters needed
// for configuration generation.
func NewSessionReadyForXML(sessionId uuid.UUID, jobType string) Event {
	return BaseEvent{
		Type: TypeSessionReadyForXML,
		Data: map[string]interface{}{
			"session_id": sessionId.String(),
			"job_type":   jobType,
		},
		OccurredAt: time.Now(),
	}
}

// NewSessionCompleted signals that the generation collaborator reported
// success for a session.
func NewSessionCompleted(sessionId uuid.UUID, jobType string) Event {
	return BaseEvent{
		Type: TypeSessionCompleted,
		Data: map[string]interface{}{
			"session_id": sessionId.String(),
			"job_type":   jobType,
		},
		OccurredAt: time.Now(),
	}
}
