package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/tryexperimenter/experimenter-api/internal/handlers"
)

func Setup(
	app *fiber.App,
	healthHandler *handlers.HealthHandler,
	logHandler *handlers.LogHandler,
	submissionHandler *handlers.SubmissionHandler,
	scheduleHandler *handlers.ScheduleHandler,
) {
	api := app.Group("/api")
	api.Get("/health", healthHandler.Check)

	v1 := app.Group("/v1")

	// General API rate limiter: 60 req/min per IP
	v1.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	v1.Get("/experimenter-log/", logHandler.ExperimenterLog)
	v1.Post("/submit-observation/", submissionHandler.SubmitObservation)
	v1.Get("/schedule-messages/", scheduleHandler.ScheduleMessages)
}
