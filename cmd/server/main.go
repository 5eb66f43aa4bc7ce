package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/codec"
	"github.com/tryexperimenter/experimenter-api/internal/config"
	"github.com/tryexperimenter/experimenter-api/internal/database"
	"github.com/tryexperimenter/experimenter-api/internal/handlers"
	"github.com/tryexperimenter/experimenter-api/internal/logging"
	"github.com/tryexperimenter/experimenter-api/internal/mailer"
	"github.com/tryexperimenter/experimenter-api/internal/middleware"
	"github.com/tryexperimenter/experimenter-api/internal/routes"
	"github.com/tryexperimenter/experimenter-api/internal/services"
	"github.com/tryexperimenter/experimenter-api/internal/shortener"
	"github.com/tryexperimenter/experimenter-api/internal/tabular"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.ScheduleAuthCode == "" {
		slog.Error("SCHEDULE_AUTH_CODE environment variable is required")
		os.Exit(1)
	}

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cleanupDone)

	// Sentry error tracking
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			sentryEnabled = true
		}
	}
	notifier := alerting.New(sentryEnabled)

	// Services
	source := tabular.NewPostgresSource(db)
	sgMailer := mailer.NewSendGridMailer(cfg.SendGridAPIKey)
	shortIO := shortener.NewShortIO(cfg.ShortIOAPIKey, cfg.ShortIODomain)

	logService := services.NewLogService(source, notifier, cfg.NotFoundDelay)
	submissionService := services.NewSubmissionService(
		database.NewObservationStore(db), notifier, cfg.TransactionalSubmit)
	schedulerService := services.NewSchedulerService(
		source, database.NewActionStore(db), sgMailer, shortIO, notifier,
		services.SchedulerConfig{
			MinLead:           cfg.ScheduleMinLead,
			MaxHorizon:        cfg.ScheduleMaxHorizon,
			SenderEmail:       cfg.SenderEmail,
			SenderDisplayName: cfg.SenderDisplayName,
			OperatorEmail:     cfg.OperatorEmail,
			SiteBaseURL:       cfg.SiteBaseURL,
		})

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	logHandler := handlers.NewLogHandler(logService)
	submissionHandler := handlers.NewSubmissionHandler(submissionService)
	scheduleHandler := handlers.NewScheduleHandler(schedulerService, cfg.ScheduleAuthCode, cfg.NotFoundDelay)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		JSONEncoder:  codec.Marshal,
		JSONDecoder:  codec.Unmarshal,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.APICallAudit(db, cfg.Environment))

	// Routes
	routes.Setup(app, healthHandler, logHandler, submissionHandler, scheduleHandler)

	// Optional in-process scheduler trigger
	var cronRunner *cron.Cron
	if cfg.ScheduleCron != "" {
		cronRunner = cron.New()
		_, err := cronRunner.AddFunc(cfg.ScheduleCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := schedulerService.Run(ctx); err != nil {
				slog.Error("cron scheduling run failed", "error", err.Error())
			}
		})
		if err != nil {
			slog.Error("invalid SCHEDULE_CRON spec", "spec", cfg.ScheduleCron, "error", err)
			os.Exit(1)
		}
		cronRunner.Start()
		slog.Info("in-process scheduler enabled", "spec", cfg.ScheduleCron)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if cronRunner != nil {
		<-cronRunner.Stop().Done()
	}
	close(cleanupDone)
	pgLogHandler.Stop()
	if sentryEnabled {
		sentry.Flush(2 * time.Second)
	}

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Close database connections
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
