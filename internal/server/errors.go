package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	classifierdomain "github.com/stackbill/stackbill/internal/classifier/domain"
	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
	reconcilerdomain "github.com/stackbill/stackbill/internal/reconciler/domain"
	"github.com/stackbill/stackbill/pkg/db"
)

type errorPayload struct {
	Type    string                          `json:"type"`
	Message string                          `json:"message"`
	Errors  []billingdomain.ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &billingdomain.ValidationErrors{
		Errors: []billingdomain.ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, classifierdomain.ErrUnsupportedFormat),
		errors.Is(err, classifierdomain.ErrMalformedInput):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, billingdomain.ErrInvalidOrganization),
		errors.Is(err, reconcilerdomain.ErrInvalidOrganization):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, reconcilerdomain.ErrDeployInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a deployment for this billing model is already running",
		}
	case errors.Is(err, ErrConflict), db.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, providerdomain.ErrProviderNotFound),
		errors.Is(err, providerdomain.ErrInvalidConfig):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "billing provider is not configured",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *billingdomain.ValidationErrors {
	var vErr *billingdomain.ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, billingdomain.ErrInvalidID),
		errors.Is(err, reconcilerdomain.ErrModelNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
