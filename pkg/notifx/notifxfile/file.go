package notifxfile

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/fsx"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/google/uuid"
	"github.com/jordan-wright/email"
)

// FileProvider writes each email as an .eml file into an fsx file system.
// Useful for staging environments and for inspecting exact MIME output.
type FileProvider struct {
	fs     fsx.FileWriter
	prefix string
	now    func() time.Time
}

var _ notifx.Provider = (*FileProvider)(nil)

// NewFileProvider stores files under prefix/YYYY-MM-DD/<id>.eml.
func NewFileProvider(fs fsx.FileWriter, prefix string) *FileProvider {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "outbox"
	}
	return &FileProvider{fs: fs, prefix: prefix, now: time.Now}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Send(ctx context.Context, msg notifx.Message) (string, error) {
	id := uuid.NewString()

	e := email.NewEmail()
	e.From = msg.Account.From()
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	if msg.HTMLBody != "" {
		e.HTML = []byte(msg.HTMLBody)
	}
	if msg.TextBody != "" {
		e.Text = []byte(msg.TextBody)
	}
	e.Headers.Set("Message-Id", "<"+id+"@mailroom.local>")
	for k, v := range msg.Headers {
		e.Headers.Set(k, v)
	}

	raw, err := e.Bytes()
	if err != nil {
		return "", notifx.SendFailed(p.Name(), err)
	}

	key := path.Join(p.prefix, p.now().UTC().Format("2006-01-02"), id+".eml")
	if err := p.fs.WriteFile(ctx, key, raw); err != nil {
		return "", notifx.SendFailed(p.Name(), err)
	}
	return id, nil
}
