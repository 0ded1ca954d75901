package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/formulalab/formula-gateway/internal/usecase"
)

// StatusClientClosedRequest is logged when the caller went away before the response
const StatusClientClosedRequest = 499

// retryAfterSeconds is advertised on 503 responses
const retryAfterSeconds = 5

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter int
}

// MapUsecaseError maps usecase errors to HTTP error responses.
// Invalid input keeps the underlying message so callers can see what was wrong.
func MapUsecaseError(err error) ErrorResponse {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_INPUT",
			Message:    err.Error(),
		}
	case errors.Is(err, usecase.ErrSolverDisabled):
		return ErrorResponse{
			StatusCode: http.StatusNotFound,
			Code:       "SOLVER_DISABLED",
			Message:    "solver is disabled",
		}
	case errors.Is(err, usecase.ErrModelFailure):
		return ErrorResponse{
			StatusCode: http.StatusBadGateway,
			Code:       "MODEL_FAILURE",
			Message:    "model inference failed",
		}
	case errors.Is(err, usecase.ErrOverloaded):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "OVERLOADED",
			Message:    "server is busy, retry later",
			RetryAfter: retryAfterSeconds,
		}
	case errors.Is(err, usecase.ErrTimeout):
		return ErrorResponse{
			StatusCode: http.StatusGatewayTimeout,
			Code:       "TIMEOUT",
			Message:    "inference timed out",
		}
	case errors.Is(err, context.Canceled):
		return ErrorResponse{
			StatusCode: StatusClientClosedRequest,
			Code:       "CLIENT_CLOSED_REQUEST",
			Message:    "client closed request",
		}
	default:
		return ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "internal server error",
		}
	}
}

// HandleUsecaseError handles a usecase error by sending an appropriate HTTP response.
func HandleUsecaseError(c *gin.Context, err error) {
	_ = c.Error(err)
	errResp := MapUsecaseError(err)
	if errResp.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(errResp.RetryAfter))
	}
	respondError(c, errResp.StatusCode, errResp.Code, errResp.Message)
}

// HandleInvalidRequest handles a generic invalid request error.
func HandleInvalidRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "INVALID_INPUT", message)
}

// HandlePayloadTooLarge handles an upload over the configured limit.
func HandlePayloadTooLarge(c *gin.Context, limit int64) {
	respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		"payload exceeds "+strconv.FormatInt(limit, 10)+" bytes")
}
