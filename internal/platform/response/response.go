// Package response writes the JSON envelope used by every endpoint.
package response

import (
	"net/http"

	"github.com/GearGrab/service-booking/internal/platform/apperror"
	"github.com/gin-gonic/gin"
)

// Envelope is the top-level JSON body.
type Envelope struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Pagination `json:"meta,omitempty"`
}

// ErrorBody carries a stable code and a human-readable message.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Pagination describes a page of a list response.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// Success writes data with 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes data with 201.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes one page of data with its pagination block.
func Paginated(c *gin.Context, data any, total int64, page, limit int) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &Pagination{Total: total, Page: page, Limit: limit},
	})
}

// BadRequest aborts with 400 and the validation code.
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{
		Error: &ErrorBody{Code: apperror.CodeValidation, Message: msg},
	})
}

// Unauthorized aborts with 401.
func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{
		Error: &ErrorBody{Code: apperror.CodeUnauthorized, Message: msg},
	})
}

// Forbidden aborts with 403.
func Forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Envelope{
		Error: &ErrorBody{Code: apperror.CodeForbidden, Message: msg},
	})
}

// Error maps err to its status and code. Errors outside the apperror
// taxonomy are reported as 500 without leaking their message.
func Error(c *gin.Context, err error) {
	appErr := apperror.From(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.Status, Envelope{
		Error: &ErrorBody{Code: appErr.Code, Message: appErr.Message, Retryable: appErr.Retryable},
	})
}
