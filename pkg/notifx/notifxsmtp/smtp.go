package notifxsmtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/google/uuid"
	"github.com/knadh/smtppool"
)

// Server holds the connection settings of one sender account.
type Server struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Connections        int
	InsecureSkipVerify bool
	IdleTimeout        time.Duration
	SendTimeout        time.Duration
}

// SMTPProvider sends through one pooled SMTP connection set per account.
type SMTPProvider struct {
	mu      sync.Mutex
	servers map[string]Server
	pools   map[string]*smtppool.Pool
}

var _ notifx.Provider = (*SMTPProvider)(nil)

// NewSMTPProvider connects a pool for every account, keyed by account name.
func NewSMTPProvider(servers map[string]Server) (*SMTPProvider, error) {
	p := &SMTPProvider{
		servers: servers,
		pools:   make(map[string]*smtppool.Pool, len(servers)),
	}
	for name, srv := range servers {
		pool, err := connect(srv)
		if err != nil {
			p.Close()
			return nil, smtpErrors.NewWithCause(ErrConnect, err).
				WithDetail("account", name).
				WithDetail("host", srv.Host)
		}
		p.pools[name] = pool
	}
	return p, nil
}

func connect(srv Server) (*smtppool.Pool, error) {
	var auth smtp.Auth
	if srv.Username != "" || srv.Password != "" {
		auth = smtp.PlainAuth("", srv.Username, srv.Password, srv.Host)
	}

	conns := srv.Connections
	if conns <= 0 {
		conns = 4
	}
	idle := srv.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}
	wait := srv.SendTimeout
	if wait <= 0 {
		wait = 30 * time.Second
	}

	return smtppool.New(smtppool.Opt{
		Host:            srv.Host,
		Port:            srv.Port,
		MaxConns:        conns,
		IdleTimeout:     idle,
		PoolWaitTimeout: wait,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: srv.InsecureSkipVerify,
			ServerName:         srv.Host,
		},
		Auth: auth,
	})
}

func (p *SMTPProvider) Name() string { return "smtp" }

func (p *SMTPProvider) pool(account string) (*smtppool.Pool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.pools[account]
	return pool, ok
}

// Send delivers msg through the pool of msg.Account. The returned id is the
// Message-Id header generated for the email. smtppool does not take a
// context; the adapter bounds the call instead.
func (p *SMTPProvider) Send(ctx context.Context, msg notifx.Message) (string, error) {
	pool, ok := p.pool(msg.Account.Name)
	if !ok {
		return "", smtpErrors.New(ErrUnknownAccount).WithDetail("account", msg.Account.Name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := messageID(msg.Account.Email)
	headers := textproto.MIMEHeader{}
	headers.Set("Message-Id", id)
	for k, v := range msg.Headers {
		headers.Set(k, v)
	}

	e := smtppool.Email{
		From:    msg.Account.From(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Headers: headers,
	}
	if msg.HTMLBody != "" {
		e.HTML = []byte(msg.HTMLBody)
	}
	if msg.TextBody != "" {
		e.Text = []byte(msg.TextBody)
	}

	if err := pool.Send(e); err != nil {
		p.reconnect(msg.Account.Name)
		return "", notifx.SendFailed(p.Name(), err)
	}
	return id, nil
}

// reconnect replaces the pool of account after a failed send so broken
// connections are not reused.
func (p *SMTPProvider) reconnect(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	srv, ok := p.servers[account]
	if !ok {
		return
	}
	pool, err := connect(srv)
	if err != nil {
		logx.WithError(err).WithField("account", account).Error("notifx/smtp: cannot reconnect pool")
		return
	}
	if old := p.pools[account]; old != nil {
		old.Close()
	}
	p.pools[account] = pool
	logx.WithField("account", account).Warn("notifx/smtp: reconnected pool")
}

// Close shuts every pool down.
func (p *SMTPProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, pool := range p.pools {
		pool.Close()
		delete(p.pools, name)
	}
}

func messageID(from string) string {
	domain := "mailroom.local"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
