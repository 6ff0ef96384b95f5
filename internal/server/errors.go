package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	entitlementdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/entitlement/domain"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	regenerationdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration/domain"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"github.com/gin-gonic/gin"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
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
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, billingdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, profiledomain.ErrCustomerConflict),
		errors.Is(err, billingdomain.ErrReconcileInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, billingdomain.ErrReconcileThrottled):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many reconcile requests",
		}
	case errors.Is(err, apperr.ErrConfiguration):
		return http.StatusInternalServerError, errorPayload{
			Type:    "configuration_error",
			Message: err.Error(),
		}
	case errors.Is(err, apperr.ErrStorage),
		errors.Is(err, billingdomain.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and a stable code for logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if payload.Type == "validation_error" && len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	billingdomain.ErrInvalidEvent,
	billingdomain.ErrInvalidUserID,
	entitlementdomain.ErrInvalidUserID,
	entitlementdomain.ErrInvalidProfileKind,
	entitlementdomain.ErrInvalidCount,
	profiledomain.ErrInvalidUserID,
	regenerationdomain.ErrInvalidUserID,
	regenerationdomain.ErrInvalidCharacterID,
	tierdomain.ErrInvalidTierID,
	tierdomain.ErrInvalidUserID,
	tierdomain.ErrInvalidLimit,
	tierdomain.ErrInvalidName,
	usagedomain.ErrInvalidUserID,
	usagedomain.ErrInvalidResourceKind,
	usagedomain.ErrInvalidPeriodKey,
	usagedomain.ErrInvalidAmount,
	usagedomain.ErrInvalidReason,
}

func isValidationError(err error) bool {
	return validationSentinel(err) != nil
}

func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func validationErrorCode(err error) string {
	if sentinel := validationSentinel(err); sentinel != nil {
		return sentinel.Error()
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
