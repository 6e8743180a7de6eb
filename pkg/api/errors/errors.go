package errors

import (
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/labstack/echo/v4"
)

// msgInternal is returned in place of internal details
const msgInternal = "Internal server error"

// ValidationError responds 400 with every field violation
func ValidationError(c echo.Context, fields []models.FieldError) error {
	log.Printf("[VALIDATION ERROR] %s %s: %d field(s) rejected", c.Request().Method, c.Request().URL.Path, len(fields))
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Message: "Validation failed",
		Errors:  fields,
	})
}

// BadRequestError responds 400 with msg
func BadRequestError(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msg})
}

// InvalidStatusError responds 400 listing the accepted statuses
func InvalidStatusError(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Message:       domain.MsgInvalidStatus,
		ValidStatuses: models.ValidStatuses,
	})
}

// NotFoundError responds 404 with msg
func NotFoundError(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: msg})
}

// ConflictError responds 409 for a lead that already exists
func ConflictError(c echo.Context, msg, leadID string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{Message: msg, LeadID: leadID})
}

// InvalidStateError responds 400 for an operation the lead's status forbids
func InvalidStateError(c echo.Context, msg, leadID string, current models.Status) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Message:       msg,
		LeadID:        leadID,
		CurrentStatus: current,
	})
}

// InternalError logs err and responds 500 without exposing it
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	capture(c, err)
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: msgInternal})
}

// HandleError maps a service error onto its response
func HandleError(c echo.Context, err error) error {
	de, ok := domain.AsDomainError(err)
	if !ok {
		return InternalError(c, err)
	}

	switch de.Code {
	case domain.ErrCodeValidation:
		return ValidationError(c, de.Fields)
	case domain.ErrCodeBadRequest:
		if de.Message == domain.MsgInvalidStatus {
			return InvalidStatusError(c)
		}
		return BadRequestError(c, de.Message)
	case domain.ErrCodeNotFound:
		return NotFoundError(c, de.Message)
	case domain.ErrCodeConflict:
		return ConflictError(c, de.Message, de.LeadID)
	case domain.ErrCodeInvalidState:
		return InvalidStateError(c, de.Message, de.LeadID, de.CurrentStatus)
	default:
		return InternalError(c, err)
	}
}

// capture forwards err to Sentry when the request carries a hub
func capture(c echo.Context, err error) {
	hub := sentryecho.GetHubFromContext(c)
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("path", c.Path())
		hub.CaptureException(err)
	})
}
