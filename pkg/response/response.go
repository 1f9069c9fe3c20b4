// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aura-classroom/backend/pkg/errs"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func success(c *gin.Context, code int, data interface{}) {
	c.JSON(code, Body{Success: true, Data: data})
}

func failure(c *gin.Context, code int, msg string) {
	c.JSON(code, Body{Success: false, Error: msg})
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) { success(c, http.StatusOK, data) }

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) { success(c, http.StatusCreated, data) }

// NoContent sends 204.
func NoContent(c *gin.Context) { c.Status(http.StatusNoContent) }

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, msg string) { failure(c, http.StatusBadRequest, msg) }

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) { failure(c, http.StatusUnauthorized, msg) }

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) { failure(c, http.StatusForbidden, msg) }

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) { failure(c, http.StatusConflict, msg) }

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) { failure(c, http.StatusServiceUnavailable, msg) }

// Internal sends 500.
func Internal(c *gin.Context, msg string) { failure(c, http.StatusInternalServerError, msg) }

// Error maps a service error to its status code (see errs.ToHTTP) and writes the envelope.
// The error is attached to the context so the request logger records the full chain.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	failure(c, errs.ToHTTP(err), errs.Message(err))
}
