package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextRequestID is the gin context key holding the request id.
const ContextRequestID = "request_id"

// Response is the JSON envelope of every API reply.
type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Status: "success", Data: data}
}

func NewErrorResponse(message string) *Response {
	return &Response{Status: "error", Message: message}
}

// OK replies 200 with data.
func OK(c *gin.Context, data interface{}) {
	resp := NewSuccessResponse(data)
	resp.RequestID = c.GetString(ContextRequestID)
	c.JSON(http.StatusOK, resp)
}

// Abort replies with an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, message string) {
	resp := NewErrorResponse(message)
	resp.RequestID = c.GetString(ContextRequestID)
	c.AbortWithStatusJSON(status, resp)
}
