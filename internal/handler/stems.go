package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/service"
	"github.com/makeasinger/stems/internal/store"
	"github.com/makeasinger/stems/pkg/response"
)

type StemsHandler struct {
	service   *service.SeparationService
	validator *validator.Validate
}

func NewStemsHandler(svc *service.SeparationService, v *validator.Validate) *StemsHandler {
	return &StemsHandler{
		service:   svc,
		validator: v,
	}
}

// Separate handles POST /api/stems/separate
func (h *StemsHandler) Separate(c *fiber.Ctx) error {
	var req model.SeparateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "subjectId and audioReference are required", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		var inFlight *store.InFlightError
		switch {
		case errors.As(err, &inFlight):
			return response.Conflict(c, "A separation job is already in progress for this subject", inFlight.ExistingJobID)
		case errors.Is(err, service.ErrValidation):
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Status handles GET /api/stems/separate?jobId=&subjectId=
func (h *StemsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Query("jobId")
	subjectID := c.Query("subjectId")

	job, err := h.service.GetStatus(c.Context(), jobID, subjectID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return response.ValidationError(c, "jobId or subjectId is required", nil)
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.SeparationStatusResponse{
		Success: true,
		Job:     model.NewJobProjection(job),
	})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
