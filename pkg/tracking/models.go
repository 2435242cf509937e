// Package tracking records email opens and clicks.
package tracking

import (
	"time"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
)

// EventType is the kind of engagement recorded.
type EventType string

const (
	EventOpen  EventType = "open"
	EventClick EventType = "click"
)

// ParseEventType maps the event query parameter, defaulting to open.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(raw) {
	case "", EventOpen:
		return EventOpen, nil
	case EventClick:
		return EventClick, nil
	default:
		return "", trackingErrors.New(ErrInvalidEvent).WithDetail("event", raw)
	}
}

// Event is an append-only engagement row. EmailID is not checked against
// the queue.
type Event struct {
	ID         kernel.EventID    `json:"id"`
	EmailID    string            `json:"email_id"`
	EventType  EventType         `json:"event_type"`
	EventData  map[string]string `json:"event_data"`
	UserAgent  string            `json:"user_agent"`
	IPAddress  string            `json:"ip_address"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Hit is the request side of a tracking call.
type Hit struct {
	EmailID   string
	UserAgent string
	IPAddress string
}

// NewEvent builds the row for a hit. url is only stored for clicks.
func NewEvent(hit Hit, eventType EventType, url string, now time.Time) Event {
	data := map[string]string{}
	if eventType == EventClick {
		data["url"] = url
	}
	return Event{
		ID:         kernel.NewEventID(),
		EmailID:    hit.EmailID,
		EventType:  eventType,
		EventData:  data,
		UserAgent:  hit.UserAgent,
		IPAddress:  hit.IPAddress,
		OccurredAt: now,
	}
}
