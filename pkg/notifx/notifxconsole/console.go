package notifxconsole

import (
	"context"

	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/google/uuid"
)

// ConsoleProvider prints emails to the terminal via logx. Intended for development and testing.
type ConsoleProvider struct{}

var _ notifx.Provider = (*ConsoleProvider)(nil)

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) Name() string { return "console" }

// Send logs the email instead of delivering it and returns a random id.
func (p *ConsoleProvider) Send(_ context.Context, msg notifx.Message) (string, error) {
	id := "console-" + uuid.NewString()

	logx.WithFields(logx.Fields{
		"message_id": id,
		"from":       msg.Account.From(),
		"to":         msg.To,
		"subject":    msg.Subject,
		"tag":        msg.Tag,
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		logx.Debugf("notifx/console: html body:\n%s", msg.HTMLBody)
	}

	return id, nil
}
