package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MessageResponse is the body of informational endpoints
type MessageResponse struct {
	Message string `json:"message"`
}

// RecognitionResponse is the body of a successful recognition
type RecognitionResponse struct {
	Status      string `json:"status"`
	Formula     string `json:"formula"`
	Explanation string `json:"explanation"`
}

// SolveResponse is the body of a successful solve
type SolveResponse struct {
	Solution string `json:"solution"`
}

// ErrorBody is the body of every error response
type ErrorBody struct {
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func requestID(c *gin.Context) string {
	id := c.GetString("request_id")
	if id == "" {
		id = uuid.New().String()
		c.Set("request_id", id)
	}
	return id
}

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func respondError(c *gin.Context, status int, code, detail string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Detail:    detail,
		Code:      code,
		RequestID: requestID(c),
	})
}
