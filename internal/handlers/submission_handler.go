package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
	"github.com/tryexperimenter/experimenter-api/internal/services"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// SubmitObservation records a new observation, superseding the user's prior
// one for the same prompt. The verdict is binary: success, or failure with
// the prior observation left in place.
func (h *SubmissionHandler) SubmitObservation(c *fiber.Ctx) error {
	var req dto.SubmitObservationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(dto.SubmissionResponse{
			Status:              "failure",
			EndUserErrorMessage: "Error saving observation.",
		})
	}

	if err := h.submissionService.Submit(c.Context(), req); err != nil {
		return c.JSON(dto.SubmissionResponse{
			Status:              "failure",
			EndUserErrorMessage: "Error saving observation.",
		})
	}
	return c.JSON(dto.SubmissionResponse{Status: "success"})
}
