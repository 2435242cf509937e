package tmplxapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/tmplx"
	"github.com/Abraxas-365/mailroom/pkg/tmplx/tmplxapi"
	"github.com/gofiber/fiber/v2"
)

func newApp(store *tmplx.MapStore) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status, body := errx.Response(err, "", false)
			return c.Status(status).JSON(body)
		},
	})
	tmplxapi.NewHandlers(tmplx.NewPreviewer(store), store).RegisterRoutes(app)
	return app
}

func post(t *testing.T, app *fiber.App, target, body string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	out, _ := io.ReadAll(resp.Body)
	return resp, string(out)
}

func TestPreview(t *testing.T) {
	store := tmplx.NewMapStore(nil)
	store.Put("basic", "<body>{{ content }}</body>")
	app := newApp(store)

	resp, body := post(t, app, "/api/v1/templates/preview",
		`{"content":"<p>{{ subject }} {{ name }}</p>","template_id":"basic","subject":"Hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", resp.StatusCode, body)
	}
	var res tmplx.PreviewResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatal(err)
	}
	if res.Markup != "<body><p>Hello {{ name }}</p></body>" {
		t.Fatalf("unexpected markup %q", res.Markup)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0] != "name" {
		t.Fatalf("unexpected unresolved %v", res.Unresolved)
	}

	resp, body = post(t, app, "/api/v1/templates/preview?format=html", `{"content":"<p>raw</p>"}`)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") || body != "<p>raw</p>" {
		t.Fatalf("unexpected html preview %q %q", resp.Header.Get("Content-Type"), body)
	}
}

func TestPreviewErrors(t *testing.T) {
	app := newApp(tmplx.NewMapStore(nil))

	cases := []struct {
		body   string
		status int
		code   string
	}{
		{`{"content":""}`, http.StatusBadRequest, tmplx.ErrInvalidPreview.Code},
		{`{"content":"x","template_id":"missing"}`, http.StatusNotFound, tmplx.ErrTemplateNotFound.Code},
		{`{"content":"x","template_id":"../etc"}`, http.StatusBadRequest, tmplx.ErrInvalidID.Code},
		{`{"content":`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		resp, body := post(t, app, "/api/v1/templates/preview", tc.body)
		if resp.StatusCode != tc.status || !strings.Contains(body, tc.code) {
			t.Errorf("%s: expected %d %s, got %d %s", tc.body, tc.status, tc.code, resp.StatusCode, body)
		}
	}
}

func TestListTemplates(t *testing.T) {
	store := tmplx.NewMapStore(map[string]string{"welcome": "<p/>"})
	store.Put("digest", "<p/>")

	resp, err := newApp(store).Test(httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"templates":["digest","welcome"]}` {
		t.Fatalf("unexpected list %d %s", resp.StatusCode, body)
	}
}
