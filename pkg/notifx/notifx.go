package notifx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/asyncx"
	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/logx"
)

// Provider delivers a single message and returns the provider-assigned
// message id.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

// Sender is what the queue processor depends on.
type Sender interface {
	Send(ctx context.Context, env Envelope, sc SendContext) (DeliveryResult, error)
}

// Config configures an Adapter.
type Config struct {
	SendTimeout time.Duration
}

// Adapter turns every provider outcome into a DeliveryResult. Only
// configuration faults are returned as errors.
type Adapter struct {
	provider Provider
	accounts *AccountPool
	timeout  time.Duration
}

var _ Sender = (*Adapter)(nil)

func NewAdapter(provider Provider, accounts *AccountPool, cfg Config) (*Adapter, error) {
	if provider == nil {
		return nil, notifxErrors.New(ErrNoProvider)
	}
	if accounts == nil {
		return nil, notifxErrors.New(ErrNoAccount).WithDetail("reason", "account pool is nil")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Adapter{provider: provider, accounts: accounts, timeout: cfg.SendTimeout}, nil
}

// Accounts exposes the pool for health reporting.
func (a *Adapter) Accounts() *AccountPool {
	return a.accounts
}

// Send delivers env through the configured provider. Provider errors and
// timeouts come back as an unsuccessful result with a nil error.
func (a *Adapter) Send(ctx context.Context, env Envelope, sc SendContext) (DeliveryResult, error) {
	account, err := a.accounts.Select(sc.EmailType)
	if err != nil {
		return DeliveryResult{Provider: a.provider.Name()}, err
	}

	result := DeliveryResult{Provider: a.provider.Name(), Sender: account.Email}

	msg := Message{
		Account:  account,
		To:       env.Recipient,
		Subject:  env.Subject,
		HTMLBody: env.HTMLBody,
		TextBody: env.TextBody,
		Tag:      sc.Tag,
		Headers:  headers(sc),
	}
	if err := msg.Validate(); err != nil {
		result.Error = errorText(err)
		return result, nil
	}

	start := time.Now()
	id, err := asyncx.WithTimeout(ctx, a.timeout, func(ctx context.Context) (string, error) {
		return a.provider.Send(ctx, msg)
	})

	log := logx.WithFields(logx.Fields{
		"provider":  result.Provider,
		"account":   account.Name,
		"recipient": env.Recipient,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.Error = fmt.Sprintf("send timed out after %s", a.timeout)
		} else {
			result.Error = errorText(err)
		}
		a.accounts.RecordFailure(account.Name)
		log.WithError(err).Warn("notifx: send failed")
		return result, nil
	}

	a.accounts.RecordSuccess(account.Name)
	result.Success = true
	result.MessageID = id
	log.WithField("message_id", id).Debug("notifx: email sent")
	return result, nil
}

func headers(sc SendContext) map[string]string {
	h := make(map[string]string, 2)
	if sc.Tag != "" {
		h["X-Mailroom-Tag"] = sc.Tag
	}
	if sc.EmailType != "" {
		h["X-Mailroom-Type"] = string(sc.EmailType)
	}
	return h
}

// errorText renders err as the reason stored on the queued message. The
// provider's own wording is kept after the errx message.
func errorText(err error) string {
	if e, ok := errx.As(err); ok {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		if reason, ok := e.Details["reason"].(string); ok {
			return e.Message + ": " + reason
		}
		return e.Message
	}
	return err.Error()
}
