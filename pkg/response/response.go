package response

import "github.com/gofiber/fiber/v2"

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "JOB_IN_PROGRESS"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	Message string      `json:"message,omitempty"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ConflictResponse points the caller at the job already running for the subject
type ConflictResponse struct {
	Error         ErrorDetail `json:"error"`
	ExistingJobID string      `json:"existingJobId"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *fiber.Ctx, message, existingJobID string) error {
	return c.Status(fiber.StatusConflict).JSON(ConflictResponse{
		Error: ErrorDetail{
			Code:    CodeConflict,
			Message: message,
		},
		ExistingJobID: existingJobID,
	})
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

// ServiceError reports an unexpected failure; message carries the underlying error
func ServiceError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    CodeServiceError,
			Message: "Internal Server Error",
		},
		Message: message,
	})
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}
