package kernel

import "github.com/google/uuid"

// MessageID identifies a queued email.
type MessageID string

func NewMessageID() MessageID { return MessageID(uuid.NewString()) }

func (id MessageID) String() string { return string(id) }

// Valid reports whether the id is a well-formed UUID.
func (id MessageID) Valid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// EventID identifies a tracking event row.
type EventID string

func NewEventID() EventID { return EventID(uuid.NewString()) }

func (id EventID) String() string { return string(id) }

// ContextKey namespaces values stored in context.Context.
type ContextKey string

const (
	// RequestIDKey holds the X-Request-ID of the current HTTP request.
	RequestIDKey ContextKey = "request_id"
)
