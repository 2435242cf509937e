package mailq

import (
	"net/mail"
	"strings"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
)

// Status is the lifecycle state of a queued message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Metadata classifies a message and carries its tracking flags.
type Metadata struct {
	EmailType   notifx.EmailType  `json:"email_type,omitempty"`
	Tag         string            `json:"tag,omitempty"`
	TrackOpens  bool              `json:"track_opens,omitempty"`
	TrackClicks bool              `json:"track_clicks,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Message is one outbound email and its delivery state.
type Message struct {
	ID                kernel.MessageID `json:"id"`
	Recipient         string           `json:"recipient"`
	SubjectTemplate   string           `json:"subject_template"`
	BodyTemplate      string           `json:"body_template"`
	TextTemplate      string           `json:"text_template,omitempty"`
	TemplateVariables map[string]any   `json:"template_variables"`
	Metadata          Metadata         `json:"metadata"`

	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	ErrorMessage  *string    `json:"error_message"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	ClaimedUntil  *time.Time `json:"claimed_until,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`

	Provider          string `json:"provider,omitempty"`
	Sender            string `json:"sender,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue reports whether a pending message may be sent at now.
func (m *Message) IsDue(now time.Time) bool {
	return m.Status == StatusPending && !m.NextAttemptAt.After(now)
}

// Claim fences a state write to the processor that took the message. Until
// is the lease ClaimDue stamped on it; a zero Until is an unclaimed write
// and only matches a pending message.
type Claim struct {
	ID    kernel.MessageID
	Until time.Time
}

// Claim returns the token a processor writes its attempt back with.
func (m *Message) Claim() Claim {
	c := Claim{ID: m.ID}
	if m.Status == StatusInProgress && m.ClaimedUntil != nil {
		c.Until = *m.ClaimedUntil
	}
	return c
}

func (c Claim) Claimed() bool { return !c.Until.IsZero() }

// Holds reports whether c still fences m.
func (c Claim) Holds(m *Message) bool {
	if !c.Claimed() {
		return m.Status == StatusPending
	}
	return m.Status == StatusInProgress && m.ClaimedUntil != nil && m.ClaimedUntil.Equal(c.Until)
}

// NewMessage is the input of Enqueue.
type NewMessage struct {
	Recipient         string         `json:"recipient"`
	SubjectTemplate   string         `json:"subject_template"`
	BodyTemplate      string         `json:"body_template"`
	TextTemplate      string         `json:"text_template,omitempty"`
	TemplateVariables map[string]any `json:"template_variables,omitempty"`
	Metadata          Metadata       `json:"metadata"`

	// SendAt schedules the first attempt. Nil or past means now.
	SendAt *time.Time `json:"send_at,omitempty"`
}

// Validate checks the fields required to build a sendable message.
func (n NewMessage) Validate() error {
	fail := func(field, reason string) error {
		return mailqErrors.New(ErrInvalidMessage).WithDetail("field", field).WithDetail("reason", reason)
	}

	if strings.TrimSpace(n.Recipient) == "" {
		return fail("recipient", "required")
	}
	if _, err := mail.ParseAddress(n.Recipient); err != nil {
		return fail("recipient", "not a valid email address")
	}
	if strings.TrimSpace(n.SubjectTemplate) == "" {
		return fail("subject_template", "required")
	}
	if strings.TrimSpace(n.BodyTemplate) == "" {
		return fail("body_template", "required")
	}
	if n.Metadata.EmailType != "" && !n.Metadata.EmailType.IsValid() {
		return fail("metadata.email_type", "must be admin, info, events, system or bulk")
	}
	return nil
}

// Build turns the request into a pending message created at now.
func (n NewMessage) Build(now time.Time) *Message {
	next := now
	if n.SendAt != nil && n.SendAt.After(now) {
		next = *n.SendAt
	}
	vars := n.TemplateVariables
	if vars == nil {
		vars = map[string]any{}
	}
	return &Message{
		ID:                kernel.NewMessageID(),
		Recipient:         strings.TrimSpace(n.Recipient),
		SubjectTemplate:   n.SubjectTemplate,
		BodyTemplate:      n.BodyTemplate,
		TextTemplate:      n.TextTemplate,
		TemplateVariables: vars,
		Metadata:          n.Metadata,
		Status:            StatusPending,
		NextAttemptAt:     next,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// BatchResult is the outcome of one processing cycle.
type BatchResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Stats summarizes the queue.
type Stats struct {
	Pending         int        `json:"pending"`
	InProgress      int        `json:"in_progress"`
	Sent            int        `json:"sent"`
	Failed          int        `json:"failed"`
	OldestPendingAt *time.Time `json:"oldest_pending_at,omitempty"`
}

// OldestPendingAge is how long the oldest due-or-scheduled pending message
// has waited, zero when nothing is pending.
func (s Stats) OldestPendingAge(now time.Time) time.Duration {
	if s.OldestPendingAt == nil || s.OldestPendingAt.After(now) {
		return 0
	}
	return now.Sub(*s.OldestPendingAt)
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status    Status
	Recipient string
}
