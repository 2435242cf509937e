package trackingapi

import (
	"context"
	"strings"

	"github.com/Abraxas-365/mailroom/pkg/tracking"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackingsrv"
	"github.com/gofiber/fiber/v2"
)

// Recorder is the tracking service as seen by the handlers.
type Recorder interface {
	RecordOpen(ctx context.Context, hit tracking.Hit) trackingsrv.WriteResult
	RecordClick(ctx context.Context, hit tracking.Hit, url string) trackingsrv.WriteResult
	Events(ctx context.Context, emailID string) ([]tracking.Event, error)
}

type Handlers struct {
	svc  Recorder
	path string
}

// NewHandlers serves tracking hits at path ("/track" when empty) and its
// /api/v1 alias.
func NewHandlers(svc Recorder, path string) *Handlers {
	if path == "" {
		path = "/track"
	}
	return &Handlers{svc: svc, path: path}
}

func (h *Handlers) RegisterRoutes(router fiber.Router) {
	router.Get(h.path, h.Track)
	router.Get("/api/v1/track", h.Track)
	router.Get("/api/v1/track/events/:id", h.Events)
}

// Track validates the hit, records it best-effort, then always answers with
// the pixel or the redirect.
func (h *Handlers) Track(c *fiber.Ctx) error {
	emailID := strings.TrimSpace(c.Query("id"))
	if emailID == "" {
		return tracking.MissingID()
	}
	event, err := tracking.ParseEventType(c.Query("event"))
	if err != nil {
		return err
	}
	target := strings.TrimSpace(c.Query("url"))
	if event == tracking.EventClick && target == "" {
		return tracking.MissingURL()
	}

	hit := tracking.Hit{
		EmailID:   emailID,
		UserAgent: orUnknown(c.Get(fiber.HeaderUserAgent)),
		IPAddress: orUnknown(c.IP()),
	}

	if event == tracking.EventClick {
		_ = h.svc.RecordClick(c.UserContext(), hit, target)
		return c.Redirect(target, fiber.StatusFound)
	}

	_ = h.svc.RecordOpen(c.UserContext(), hit)
	for k, v := range tracking.NoCacheHeaders {
		c.Set(k, v)
	}
	c.Set(fiber.HeaderContentType, tracking.PixelContentType)
	return c.Status(fiber.StatusOK).Send(tracking.Pixel)
}

func (h *Handlers) Events(c *fiber.Ctx) error {
	events, err := h.svc.Events(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"events": events})
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
