package tracking_test

import (
	"html"
	"regexp"
	"strings"
	"testing"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
)

func TestPixelIsSingleFrameGIF(t *testing.T) {
	if len(tracking.Pixel) != 43 {
		t.Fatalf("pixel is %d bytes", len(tracking.Pixel))
	}
	if string(tracking.Pixel[:6]) != "GIF89a" || tracking.Pixel[42] != 0x3b {
		t.Fatal("pixel is not a complete GIF89a")
	}
}

func TestParseEventType(t *testing.T) {
	for raw, want := range map[string]tracking.EventType{"": tracking.EventOpen, "open": tracking.EventOpen, "click": tracking.EventClick} {
		got, err := tracking.ParseEventType(raw)
		if err != nil || got != want {
			t.Fatalf("ParseEventType(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := tracking.ParseEventType("bounce"); !errx.IsCode(err, tracking.ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestInjectPixel(t *testing.T) {
	l := tracking.NewLinker("https://mail.acme.org/", "track")

	got := l.InjectPixel("<html><body><p>Hi</p></BODY></html>", "msg-1")
	want := `<html><body><p>Hi</p><img src="https://mail.acme.org/track?id=msg-1&amp;event=open" width="1" height="1" alt="" /></BODY></html>`
	if got != want {
		t.Fatalf("unexpected markup:\n%s", got)
	}

	if got := l.InjectPixel("<p>Hi</p>", "msg-1"); !strings.HasPrefix(got, "<p>Hi</p><img ") {
		t.Fatalf("pixel not appended: %s", got)
	}
}

func TestRewriteLinks(t *testing.T) {
	l := tracking.NewLinker("https://mail.acme.org", "/track")

	body := `<a href="https://acme.org/events?a=1&amp;b=2">Events</a> <a href="mailto:x@acme.org">Mail</a> <a href="/relative">Rel</a>`
	got := l.RewriteLinks(body, "msg-1")

	wantLink := `href="https://mail.acme.org/track?id=msg-1&amp;event=click&amp;url=https%3A%2F%2Facme.org%2Fevents%3Fa%3D1%26b%3D2"`
	if !strings.Contains(got, wantLink) {
		t.Fatalf("link not rewritten:\n%s", got)
	}
	if !strings.Contains(got, `href="mailto:x@acme.org"`) || !strings.Contains(got, `href="/relative"`) {
		t.Fatalf("non-http links must stay:\n%s", got)
	}

	if again := l.RewriteLinks(got, "msg-1"); again != got {
		t.Fatalf("rewriting is not stable:\n%s", again)
	}
}

func TestTrackingAttributesAreEscaped(t *testing.T) {
	l := tracking.NewLinker("https://mail.acme.org", "/track")

	body := l.InjectPixel(l.RewriteLinks(`<body><a href="https://acme.org/">Home</a></body>`, "msg-1"), "msg-1")
	for _, attr := range regexp.MustCompile(`(?:src|href)="([^"]*)"`).FindAllStringSubmatch(body, -1) {
		if strings.Contains(strings.ReplaceAll(attr[1], "&amp;", ""), "&") {
			t.Errorf("bare ampersand in attribute %q", attr[1])
		}
	}
	if !strings.Contains(body, `src="`+html.EscapeString(l.OpenURL("msg-1"))+`"`) {
		t.Fatalf("pixel src does not decode to the open URL:\n%s", body)
	}
	if !strings.Contains(body, `href="`+html.EscapeString(l.ClickURL("msg-1", "https://acme.org/"))+`"`) {
		t.Fatalf("href does not decode to the click URL:\n%s", body)
	}
}
