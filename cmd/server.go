package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/config"
	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 1. Logger
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	logx.Info("🚀 Starting Mailroom...")

	// 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}

	// 3. Dependency container
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 4. Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "Mailroom",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(cfg.Server.Debug),
		BodyLimit:             4 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
		ProxyHeader:           cfg.Server.ProxyHeader,
	})

	// 5. Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Server.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	app.Use(func(c *fiber.Ctx) error {
		id, _ := c.Locals("requestid").(string)
		c.SetUserContext(context.WithValue(c.UserContext(), kernel.RequestIDKey, id))
		return c.Next()
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, X-Request-ID",
		AllowMethods:  "GET, POST, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${locals:requestid}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Use(container.Metrics.Middleware())

	// 6. Health, info and metrics
	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler(cfg))
	app.Get("/api/v1/docs", apiDocsHandler(cfg))
	app.Get("/metrics", container.Metrics.Handler())

	// 7. Module routes
	container.MailHandlers.RegisterRoutes(app)
	logx.Info("✓ Mail queue routes registered")

	container.TrackingHandlers.RegisterRoutes(app)
	logx.Info("✓ Tracking routes registered")

	container.TemplateHandlers.RegisterRoutes(app)
	logx.Info("✓ Template routes registered")

	// 8. 404
	app.Use(notFoundHandler)

	printRouteSummary(cfg)

	// 9. Serve until a signal arrives
	if err := run(app, container); err != nil {
		logx.Errorf("Server stopped with error: %v", err)
	}
	logx.Info("✅ Server exited")
}

// ============================================================================
// Handler Functions
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":   "healthy",
			"service":  "mailroom",
			"version":  container.Config.Server.Version,
			"provider": container.Config.Notifx.Provider,
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if container.DB == nil {
			health["db"] = "memory"
		} else if err := container.Ping(ctx); err != nil {
			health["db"] = "unhealthy"
			health["db_error"] = err.Error()
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}

		if container.Redis != nil {
			if err := container.Redis.Ping(ctx).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
			} else {
				health["redis"] = "healthy"
			}
		}

		if c.QueryBool("check_storage", false) {
			if exists, err := container.FileSystem.Exists(c.UserContext(), templatesDir); err != nil {
				health["storage"] = "unhealthy"
				health["storage_error"] = err.Error()
			} else {
				health["storage"] = "healthy"
				health["templates_dir"] = exists
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func infoHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     "Mailroom",
			"version":     cfg.Server.Version,
			"description": "Transactional email queue with delivery, templating and engagement tracking",
			"endpoints": fiber.Map{
				"docs":    "/api/v1/docs",
				"health":  "/health",
				"metrics": "/metrics",
			},
		})
	}
}

func apiDocsHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"api_version": "v1",
			"base_url":    cfg.Server.BaseURL,
			"endpoints": fiber.Map{
				"mail": fiber.Map{
					"process":    "POST /api/v1/mail/process?batchSize=N[&async=true]",
					"job_status": "GET /api/v1/mail/jobs/:id",
					"reset":      "POST /api/v1/mail/reset",
					"health":     "GET /api/v1/mail/health",
					"enqueue":    "POST /api/v1/mail/messages",
					"list":       "GET /api/v1/mail/messages?status=&recipient=&page=&page_size=",
					"get":        "GET /api/v1/mail/messages/:id",
				},
				"tracking": fiber.Map{
					"pixel":  "GET " + cfg.Tracking.Path + "?id=&event=open",
					"click":  "GET " + cfg.Tracking.Path + "?id=&event=click&url=",
					"events": "GET /api/v1/track/events/:id",
				},
				"templates": fiber.Map{
					"list":    "GET /api/v1/templates",
					"preview": "POST /api/v1/templates/preview",
				},
			},
		})
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.Locals("requestid"),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler renders fiber and errx errors. Anything else is a 500
// without internals.
func globalErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("requestid").(string)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errx.HTTPErrorResponse{
				Error:     fe.Message,
				Code:      "FIBER_ERROR",
				Status:    fe.Code,
				RequestID: requestID,
			})
		}

		status, body := errx.Response(err, requestID, debug)

		entry := logx.WithFields(logx.Fields{
			"path":   c.Path(),
			"method": c.Method(),
			"ip":     c.IP(),
			"status": status,
			"code":   body.Code,
		}).WithContext(c.UserContext()).WithError(err)
		if status >= fiber.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}

		return c.Status(status).JSON(body)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func printRouteSummary(cfg *config.Config) {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Mail: /api/v1/mail/*")
	logx.Infof("   ├─ Tracking: %s, /api/v1/track/*", cfg.Tracking.Path)
	logx.Info("   ├─ Templates: /api/v1/templates/*")
	logx.Info("   ├─ Health: /health")
	logx.Info("   ├─ Metrics: /metrics")
	logx.Info("   └─ Docs: /api/v1/docs")
}

// run serves HTTP and the job worker until SIGINT or SIGTERM, then drains
// both.
func run(app *fiber.App, container *Container) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	port := container.Config.Server.Port

	g.Go(func() error {
		logx.Info("=" + repeatString("=", 60))
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("📚 API Docs: http://localhost:%s/api/v1/docs", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)
		logx.Info("=" + repeatString("=", 60))
		return app.Listen(":" + port)
	})

	g.Go(func() error {
		return container.StartBackgroundServices(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logx.Info("🛑 Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logx.Errorf("Server forced to shutdown: %v", err)
		}
		return nil
	})

	return g.Wait()
}
