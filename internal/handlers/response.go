package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"vpanel/internal/services/cron"
	"vpanel/internal/services/schedule"
)

// Envelope is the response shape every API endpoint returns. List endpoints
// put the array directly in Data.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

const (
	CodeBadRequest   = "bad_request"
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal_error"
)

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Envelope{Success: true, Data: data})
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{Success: true, Data: data})
}

func Accepted(c *fiber.Ctx) error {
	return c.Status(fiber.StatusAccepted).JSON(Envelope{Success: true})
}

func Fail(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	})
}

var validate = validator.New()

// parseBody decodes and validates a request body, responding on failure.
// The second return value tells the handler whether to continue.
func parseBody(c *fiber.Ctx, v interface{}) (bool, error) {
	if err := c.BodyParser(v); err != nil {
		return false, Fail(c, fiber.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]fiber.Map, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fiber.Map{
					"field": fe.Field(),
					"rule":  fe.Tag(),
				})
			}
			return false, Fail(c, fiber.StatusUnprocessableEntity, CodeValidation, "request validation failed", details)
		}
		return false, Fail(c, fiber.StatusUnprocessableEntity, CodeValidation, err.Error(), nil)
	}
	return true, nil
}

// failFromError maps service errors onto the envelope taxonomy.
func failFromError(c *fiber.Ctx, err error) error {
	var perr *schedule.ParseError
	if errors.As(err, &perr) {
		return Fail(c, fiber.StatusUnprocessableEntity, CodeValidation, perr.Error(), fiber.Map{
			"field": "schedule",
		})
	}
	if errors.Is(err, cron.ErrNotFound) {
		return Fail(c, fiber.StatusNotFound, CodeNotFound, "cron job not found", nil)
	}
	return Fail(c, fiber.StatusInternalServerError, CodeInternal, err.Error(), nil)
}
