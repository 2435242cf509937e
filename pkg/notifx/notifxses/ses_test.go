package notifxses_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/Abraxas-365/mailroom/pkg/notifx/notifxses"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type stubSES struct {
	input *ses.SendEmailInput
	err   error
}

func (s *stubSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func testMessage() notifx.Message {
	return notifx.Message{
		Account:  notifx.Account{Name: "events", Type: notifx.EmailTypeEvents, Email: "events@acme.org"},
		To:       "ana@example.com",
		Subject:  "Easter",
		HTMLBody: "<p>Join us</p>",
		Tag:      "event reminder",
	}
}

func TestSESProviderSend(t *testing.T) {
	client := &stubSES{}
	p := notifxses.NewSESProvider(client, "tracking-set")

	id, err := p.Send(context.Background(), testMessage())
	if err != nil || id != "ses-123" {
		t.Fatalf("Send: %q, %v", id, err)
	}

	in := client.input
	if aws.ToString(in.Source) != "events@acme.org" || in.Destination.ToAddresses[0] != "ana@example.com" {
		t.Fatalf("unexpected addressing %+v", in)
	}
	if aws.ToString(in.ConfigurationSetName) != "tracking-set" {
		t.Fatalf("configuration set not applied")
	}
	if in.Message.Body.Text != nil || aws.ToString(in.Message.Body.Html.Data) != "<p>Join us</p>" {
		t.Fatalf("unexpected body %+v", in.Message.Body)
	}
	if len(in.Tags) != 2 || aws.ToString(in.Tags[0].Value) != "event_reminder" {
		t.Fatalf("unexpected tags %+v", in.Tags)
	}
}

func TestSESProviderError(t *testing.T) {
	p := notifxses.NewSESProvider(&stubSES{err: errors.New("throttled")}, "")

	_, err := p.Send(context.Background(), testMessage())
	if !errx.IsCode(err, notifxses.ErrSendFailed) {
		t.Fatalf("expected SES send failure, got %v", err)
	}
}
