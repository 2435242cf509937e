package tmplxapi

import (
	"context"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/tmplx"
	"github.com/gofiber/fiber/v2"
)

// TemplateLister is implemented by stores that can enumerate layouts.
type TemplateLister interface {
	IDs(ctx context.Context) ([]string, error)
}

// Handlers exposes template previews over HTTP.
type Handlers struct {
	previewer *tmplx.Previewer
	lister    TemplateLister
}

// NewHandlers creates the template handlers. lister may be nil.
func NewHandlers(previewer *tmplx.Previewer, lister TemplateLister) *Handlers {
	return &Handlers{previewer: previewer, lister: lister}
}

// RegisterRoutes mounts /api/v1/templates/*.
func (h *Handlers) RegisterRoutes(router fiber.Router) {
	group := router.Group("/api/v1/templates")
	group.Post("/preview", h.Preview)
	group.Get("/", h.List)
}

// Preview renders a template preview. It has no queue side effects.
func (h *Handlers) Preview(c *fiber.Ctx) error {
	var req tmplx.PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("reason", err.Error())
	}

	result, err := h.previewer.Preview(c.UserContext(), req)
	if err != nil {
		return err
	}

	if c.Query("format") == "html" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(result.Markup)
	}
	return c.JSON(result)
}

func (h *Handlers) List(c *fiber.Ctx) error {
	ids := []string{}
	if h.lister != nil {
		var err error
		if ids, err = h.lister.IDs(c.UserContext()); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"templates": ids})
}
