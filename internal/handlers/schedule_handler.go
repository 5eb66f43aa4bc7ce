package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
	"github.com/tryexperimenter/experimenter-api/internal/services"
)

// runTimeout bounds a detached scheduling run.
const runTimeout = 10 * time.Minute

type ScheduleHandler struct {
	scheduler *services.SchedulerService
	authCode  string
	authDelay time.Duration
}

func NewScheduleHandler(scheduler *services.SchedulerService, authCode string, authDelay time.Duration) *ScheduleHandler {
	return &ScheduleHandler{scheduler: scheduler, authCode: authCode, authDelay: authDelay}
}

// ScheduleMessages triggers one scheduling run. The run is detached from
// the request so a slow provider cannot time the caller out; the response
// only acknowledges that the run was queued.
func (h *ScheduleHandler) ScheduleMessages(c *fiber.Ctx) error {
	supplied := c.Query("auth_code")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.authCode)) != 1 {
		slog.Info("schedule_messages rejected: bad auth code")
		time.Sleep(h.authDelay)
		return c.JSON(dto.ScheduleAuthError{
			Error:   "True",
			Message: "authorization code incorrect",
		})
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("schedule_messages run panicked", "recover", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := h.scheduler.Run(ctx); err != nil {
			// Run already logged and alerted; nothing to return to anyone.
			return
		}
	}()

	return c.JSON(dto.ScheduleResponse{Message: "schedule_messages() task queued"})
}
