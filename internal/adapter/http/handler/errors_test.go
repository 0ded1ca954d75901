package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/formulalab/formula-gateway/internal/usecase"
)

func TestMapUsecaseError(t *testing.T) {
	tests := []struct {
		name               string
		err                error
		expectedStatusCode int
		expectedCode       string
		expectedMessage    string
	}{
		{
			name:               "invalid input keeps detail",
			err:                fmt.Errorf("%w: formula is required", usecase.ErrInvalidInput),
			expectedStatusCode: http.StatusBadRequest,
			expectedCode:       "INVALID_INPUT",
			expectedMessage:    "invalid input: formula is required",
		},
		{
			name:               "solver disabled",
			err:                usecase.ErrSolverDisabled,
			expectedStatusCode: http.StatusNotFound,
			expectedCode:       "SOLVER_DISABLED",
			expectedMessage:    "solver is disabled",
		},
		{
			name:               "model failure",
			err:                fmt.Errorf("%w: status 500", usecase.ErrModelFailure),
			expectedStatusCode: http.StatusBadGateway,
			expectedCode:       "MODEL_FAILURE",
			expectedMessage:    "model inference failed",
		},
		{
			name:               "overloaded",
			err:                usecase.ErrOverloaded,
			expectedStatusCode: http.StatusServiceUnavailable,
			expectedCode:       "OVERLOADED",
			expectedMessage:    "server is busy, retry later",
		},
		{
			name:               "timeout",
			err:                usecase.ErrTimeout,
			expectedStatusCode: http.StatusGatewayTimeout,
			expectedCode:       "TIMEOUT",
			expectedMessage:    "inference timed out",
		},
		{
			name:               "client went away",
			err:                context.Canceled,
			expectedStatusCode: StatusClientClosedRequest,
			expectedCode:       "CLIENT_CLOSED_REQUEST",
			expectedMessage:    "client closed request",
		},
		{
			name:               "unknown error",
			err:                errors.New("some unknown error"),
			expectedStatusCode: http.StatusInternalServerError,
			expectedCode:       "INTERNAL_ERROR",
			expectedMessage:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MapUsecaseError(tt.err)

			assert.Equal(t, tt.expectedStatusCode, result.StatusCode)
			assert.Equal(t, tt.expectedCode, result.Code)
			assert.Equal(t, tt.expectedMessage, result.Message)
		})
	}
}

func TestHandleUsecaseError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name               string
		err                error
		expectedStatusCode int
		expectedRetryAfter string
	}{
		{
			name:               "overloaded sets retry-after",
			err:                usecase.ErrOverloaded,
			expectedStatusCode: http.StatusServiceUnavailable,
			expectedRetryAfter: "5",
		},
		{
			name:               "internal error",
			err:                errors.New("internal"),
			expectedStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			HandleUsecaseError(c, tt.err)

			assert.Equal(t, tt.expectedStatusCode, w.Code)
			assert.Equal(t, tt.expectedRetryAfter, w.Header().Get("Retry-After"))
			assert.Contains(t, w.Body.String(), `"detail"`)
		})
	}
}

func TestHandleInvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleInvalidRequest(c, "missing required field")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing required field")
}

func TestHandlePayloadTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandlePayloadTooLarge(c, 1024)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "PAYLOAD_TOO_LARGE")
	assert.Contains(t, w.Body.String(), "1024")
}
