package mailqapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/gofiber/fiber/v2"
)

// Service is the queue service as seen by the handlers.
type Service interface {
	Enqueue(ctx context.Context, msg mailq.NewMessage) (kernel.MessageID, error)
	ProcessBatch(ctx context.Context, batchSize int) (mailq.BatchResult, error)
	EnqueueProcessJob(ctx context.Context, batchSize int) (string, error)
	JobStatus(ctx context.Context, jobID string) (*jobx.JobInfo, error)
	ResetFailed(ctx context.Context) (int, error)
	Get(ctx context.Context, id kernel.MessageID) (*mailq.Message, error)
	List(ctx context.Context, filter mailq.ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*mailq.Message], error)
	Stats(ctx context.Context) (mailq.Stats, error)
}

// AccountReporter exposes sender-account health.
type AccountReporter interface {
	Snapshot() []notifx.AccountHealth
}

type Handlers struct {
	svc      Service
	accounts AccountReporter
}

// NewHandlers creates the queue handlers. accounts may be nil.
func NewHandlers(svc Service, accounts AccountReporter) *Handlers {
	return &Handlers{svc: svc, accounts: accounts}
}

// RegisterRoutes mounts /api/v1/mail/*.
func (h *Handlers) RegisterRoutes(router fiber.Router) {
	mail := router.Group("/api/v1/mail")
	mail.Post("/process", h.Process)
	mail.Get("/jobs/:id", h.Job)
	mail.Post("/reset", h.Reset)
	mail.Get("/health", h.Health)

	messages := mail.Group("/messages")
	messages.Post("/", h.Enqueue)
	messages.Get("/", h.List)
	messages.Get("/:id", h.Get)
}

// Process runs one processing cycle, or enqueues it with ?async=true.
func (h *Handlers) Process(c *fiber.Ctx) error {
	batchSize, err := batchSizeFrom(c)
	if err != nil {
		return err
	}

	if c.QueryBool("async") {
		jobID, err := h.svc.EnqueueProcessJob(c.UserContext(), batchSize)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID})
	}

	result, err := h.svc.ProcessBatch(c.UserContext(), batchSize)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// batchSizeFrom reads batchSize from the query string, falling back to a
// JSON body. Absent means zero (the default size).
func batchSizeFrom(c *fiber.Ctx) (int, error) {
	raw := c.Query("batchSize", c.Query("batch_size"))
	if raw == "" && len(c.Body()) > 0 {
		var body map[string]json.RawMessage
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return 0, errx.Validation("invalid request body").WithDetail("reason", err.Error())
		}
		v, ok := body["batchSize"]
		if !ok {
			v = body["batch_size"]
		}
		raw = strings.Trim(string(v), `"`)
	}
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, mailq.InvalidBatchSize(raw)
	}
	return n, nil
}

func (h *Handlers) Job(c *fiber.Ctx) error {
	info, err := h.svc.JobStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (h *Handlers) Reset(c *fiber.Ctx) error {
	n, err := h.svc.ResetFailed(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"reset": n})
}

func (h *Handlers) Enqueue(c *fiber.Ctx) error {
	var req mailq.NewMessage
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("reason", err.Error())
	}

	id, err := h.svc.Enqueue(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *Handlers) List(c *fiber.Ctx) error {
	filter := mailq.ListFilter{
		Status:    mailq.Status(c.Query("status")),
		Recipient: c.Query("recipient"),
	}
	opts := kernel.PaginationOptions{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", kernel.DefaultPageSize),
	}

	page, err := h.svc.List(c.UserContext(), filter, opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *Handlers) Get(c *fiber.Ctx) error {
	msg, err := h.svc.Get(c.UserContext(), kernel.MessageID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

// Health reports queue depth and sender-account health. It answers 200
// even when degraded so it can be scraped.
func (h *Handlers) Health(c *fiber.Ctx) error {
	stats, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return err
	}

	accounts := []notifx.AccountHealth{}
	if h.accounts != nil {
		accounts = h.accounts.Snapshot()
	}

	status := "healthy"
	for _, a := range accounts {
		if !a.Healthy {
			status = "degraded"
			break
		}
	}

	return c.JSON(fiber.Map{
		"status":                     status,
		"queue":                      stats,
		"oldest_pending_age_seconds": int(stats.OldestPendingAge(time.Now()).Seconds()),
		"accounts":                   accounts,
	})
}
