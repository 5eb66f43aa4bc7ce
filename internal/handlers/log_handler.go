package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
	"github.com/tryexperimenter/experimenter-api/internal/services"
)

type LogHandler struct {
	logService *services.LogService
}

func NewLogHandler(logService *services.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

// ExperimenterLog returns the assembled log for a public_user_id. Handled
// failures answer HTTP 200 with an error-shaped body; clients key on the
// error field, not the status code.
func (h *LogHandler) ExperimenterLog(c *fiber.Ctx) error {
	publicUserID := c.Query("public_user_id")

	resp, err := h.logService.ExperimenterLog(c.Context(), publicUserID)
	if err != nil {
		return c.JSON(dto.LogErrorResponse{
			Error:               "True",
			EndUserErrorMessage: fmt.Sprintf("Error collecting Experimenter Log data for public_user_id: %s", publicUserID),
		})
	}
	return c.JSON(resp)
}
