package trackingapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackingapi"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackinginfra"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackingsrv"
	"github.com/gofiber/fiber/v2"
)

type failingRepo struct{ calls int }

func (r *failingRepo) Append(context.Context, tracking.Event) error {
	r.calls++
	return errors.New("connection refused")
}

func (r *failingRepo) ListByEmail(context.Context, string) ([]tracking.Event, error) {
	return nil, errors.New("connection refused")
}

func newApp(repo tracking.Repository) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status, body := errx.Response(err, "", false)
			return c.Status(status).JSON(body)
		},
	})
	svc := trackingsrv.NewService(repo, time.Second, nil)
	trackingapi.NewHandlers(svc, "/track").RegisterRoutes(app)
	return app
}

func do(t *testing.T, app *fiber.App, target string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("request %s: %v", target, err)
	}
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errx.HTTPErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code
}

func TestOpenWithoutIDIsRejectedWithoutWrite(t *testing.T) {
	repo := &failingRepo{}
	resp := do(t, newApp(repo), "/track?event=open")

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != tracking.ErrMissingID.Code {
		t.Fatalf("unexpected code %s", code)
	}
	if repo.calls != 0 {
		t.Fatal("no write may happen on a rejected request")
	}
}

func TestInvalidEventIsRejected(t *testing.T) {
	repo := &failingRepo{}
	resp := do(t, newApp(repo), "/track?id=msg-1&event=bounce")
	if resp.StatusCode != http.StatusBadRequest || repo.calls != 0 {
		t.Fatalf("expected 400 without write, got %d (%d writes)", resp.StatusCode, repo.calls)
	}
}

func TestOpenReturnsPixelWhenWriteFails(t *testing.T) {
	repo := &failingRepo{}
	resp := do(t, newApp(repo), "/track?id=msg-1")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, tracking.Pixel) {
		t.Fatalf("unexpected pixel bytes %x", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store, no-cache, must-revalidate, max-age=0" {
		t.Fatalf("unexpected cache control %q", cc)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one write attempt, got %d", repo.calls)
	}
}

func TestClickWithoutURLIsRejected(t *testing.T) {
	repo := &failingRepo{}
	resp := do(t, newApp(repo), "/track?id=msg-1&event=click")

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "" {
		t.Fatal("rejected click must not redirect")
	}
	if code := errorCode(t, resp); code != tracking.ErrMissingURL.Code {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestClickRedirectsWhenWriteFails(t *testing.T) {
	repo := &failingRepo{}
	resp := do(t, newApp(repo), "/api/v1/track?id=msg-1&event=click&url=https%3A%2F%2Facme.org%2Fevents")

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://acme.org/events" {
		t.Fatalf("unexpected location %q", loc)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one write attempt, got %d", repo.calls)
	}
}

func TestHitsAreRecorded(t *testing.T) {
	repo := trackinginfra.NewMemoryRepository()
	app := newApp(repo)

	do(t, app, "/track?id=msg-1&event=open")
	do(t, app, "/track?id=msg-1&event=click&url=https%3A%2F%2Facme.org")

	resp := do(t, app, "/api/v1/track/events/msg-1")
	var body struct {
		Events []tracking.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(body.Events))
	}
	if body.Events[0].EventType != tracking.EventOpen || len(body.Events[0].EventData) != 0 {
		t.Fatalf("unexpected open event %+v", body.Events[0])
	}
	if body.Events[1].EventType != tracking.EventClick || body.Events[1].EventData["url"] != "https://acme.org" {
		t.Fatalf("unexpected click event %+v", body.Events[1])
	}
	if body.Events[1].UserAgent == "" || body.Events[1].IPAddress == "" {
		t.Fatalf("request metadata missing %+v", body.Events[1])
	}
}
