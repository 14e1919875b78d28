package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"gorm.io/gorm"
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
	ErrForbidden      = errors.New("forbidden")
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

	var fieldErr *orderdomain.FieldError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "orders[" + strconv.Itoa(fieldErr.Index) + "]." + fieldErr.Field,
					Code:    fieldErr.Err.Error(),
					Message: fieldErr.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, orderdomain.ErrEmptyBatch):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, orderdomain.ErrOrderForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isInsufficientDataError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_data",
			Message: insufficientDataMessage(err),
		}
	case errors.Is(err, forecastdomain.ErrEngineFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "forecast_engine_error",
			Message: "forecasting engine unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, forecastdomain.ErrForecastNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// isInsufficientDataError covers the business outcomes a tenant can hit
// before accumulating enough history to forecast.
func isInsufficientDataError(err error) bool {
	switch {
	case errors.Is(err, forecastdomain.ErrNoData),
		errors.Is(err, forecastdomain.ErrNoCompleteWeeks),
		errors.Is(err, forecastdomain.ErrInsufficientHistory):
		return true
	default:
		return false
	}
}

func insufficientDataMessage(err error) string {
	switch {
	case errors.Is(err, forecastdomain.ErrNoData):
		return "no order data available"
	case errors.Is(err, forecastdomain.ErrNoCompleteWeeks):
		return "no fully completed weeks available yet"
	case errors.Is(err, forecastdomain.ErrInsufficientHistory):
		return "not enough weekly history to forecast"
	default:
		return "insufficient data"
	}
}
