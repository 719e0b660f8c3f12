package types

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

// Handler utility functions to reduce duplication across handlers

// ParseLimitQuery reads a non-negative "limit" query parameter, falling back to def
func ParseLimitQuery(c *gin.Context, def, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		SendBadRequest(c, "Invalid limit")
		return 0, false
	}
	if max > 0 && (value == 0 || value > max) {
		value = max
	}
	return value, true
}

// SendError maps an application error onto its HTTP status
func SendError(c *gin.Context, err error) {
	status := apperrors.GetHTTPCode(err)
	message := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		message = appErr.Message
	}
	c.JSON(status, ErrorResponse{
		Status:  StatusError,
		Message: message,
		Error:   string(apperrors.GetCode(err)),
	})
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeValidation)})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeNotFound)})
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}
