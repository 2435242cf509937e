package notifxses

import (
	"context"
	"regexp"

	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client the provider uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESProvider implements notifx.Provider using AWS SES.
type SESProvider struct {
	client           SESAPI
	configurationSet string
}

var _ notifx.Provider = (*SESProvider)(nil)

// NewSESProvider creates a new SES email provider. configurationSet may be
// empty.
func NewSESProvider(client SESAPI, configurationSet string) *SESProvider {
	return &SESProvider{
		client:           client,
		configurationSet: configurationSet,
	}
}

func (p *SESProvider) Name() string { return "ses" }

// Send sends a single email via SES and returns the SES message id.
func (p *SESProvider) Send(ctx context.Context, msg notifx.Message) (string, error) {
	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(msg.Account.From()),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
		Tags: messageTags(msg),
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", sesErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", msg.To).
			WithDetail("account", msg.Account.Name)
	}
	return aws.ToString(out.MessageId), nil
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// messageTags maps the tag and email type onto SES message tags, which
// only accept [A-Za-z0-9_-].
func messageTags(msg notifx.Message) []types.MessageTag {
	var tags []types.MessageTag
	if msg.Tag != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("tag"), Value: aws.String(tagUnsafe.ReplaceAllString(msg.Tag, "_"))})
	}
	if msg.Account.Type != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("email_type"), Value: aws.String(string(msg.Account.Type))})
	}
	return tags
}
