package notifx

import (
	"fmt"
	"net/mail"
)

// EmailType selects which sender account delivers a message.
type EmailType string

const (
	EmailTypeAdmin  EmailType = "admin"
	EmailTypeInfo   EmailType = "info"
	EmailTypeEvents EmailType = "events"
	EmailTypeSystem EmailType = "system"
	EmailTypeBulk   EmailType = "bulk"
)

func (t EmailType) IsValid() bool {
	switch t {
	case EmailTypeAdmin, EmailTypeInfo, EmailTypeEvents, EmailTypeSystem, EmailTypeBulk:
		return true
	}
	return false
}

// Envelope is a fully rendered email addressed to one recipient.
type Envelope struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"html_body"`
	TextBody  string `json:"text_body,omitempty"`
}

// SendContext carries classification data alongside an envelope.
type SendContext struct {
	Tag       string            `json:"tag,omitempty"`
	EmailType EmailType         `json:"email_type,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DeliveryResult is the outcome of one send attempt.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Provider  string `json:"provider"`
	Sender    string `json:"sender"`
}

// Account is a sending identity.
type Account struct {
	Name        string    `json:"name"`
	Type        EmailType `json:"type"`
	Email       string    `json:"email"`
	FromName    string    `json:"from_name,omitempty"`
	HourlyLimit int       `json:"hourly_limit"`
}

// From formats the account as an RFC 5322 address.
func (a Account) From() string {
	if a.FromName == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.FromName, Address: a.Email}).String()
}

// Message is what a Provider delivers: an envelope bound to the account
// sending it.
type Message struct {
	Account  Account
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Tag      string
	Headers  map[string]string
}

// Validate checks the fields every provider relies on.
func (m Message) Validate() error {
	if m.To == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipient")
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", fmt.Sprintf("invalid recipient %q", m.To))
	}
	if m.Account.Email == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no sender address")
	}
	return nil
}
