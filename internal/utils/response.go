package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/apperr"
)

// Response represents a standard API response structure, extended with the
// timestamp field spec §7 requires on every envelope.
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	Meta      *Pagination `json:"meta,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Pagination represents pagination metadata
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

// SendSuccess sends a success response with data (200 OK)
func SendSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendCreated sends a created response with data (201 Created)
func SendCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendPaginated sends a success response with pagination metadata (200 OK)
func SendPaginated(c *gin.Context, message string, data interface{}, page, limit, total int) {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta: &Pagination{
			CurrentPage: page,
			PerPage:     limit,
			Total:       total,
			TotalPages:  totalPages,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendError sends an error response with a specific status code
func SendError(c *gin.Context, code int, message string, err error) {
	var errDetails interface{}
	if err != nil {
		errDetails = err.Error()
		c.Error(err)
	}

	c.AbortWithStatusJSON(code, Response{
		Success:   false,
		Message:   message,
		Error:     errDetails,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendValidationError sends a 400 Bad Request error
func SendValidationError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, "Validation failed", err)
}

// SendInternalError sends a 500 Internal Server Error
func SendInternalError(c *gin.Context, err error) {
	SendError(c, http.StatusInternalServerError, "Internal server error", err)
}

// SendAppError maps an apperr.Kind from a core component to the HTTP status
// spec §7 assigns it, so handlers never hand-roll that mapping per route.
func SendAppError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.InputInvalid:
		SendError(c, http.StatusBadRequest, "invalid request", err)
	case apperr.ConfigMissing:
		SendError(c, http.StatusServiceUnavailable, "service misconfigured", err)
	case apperr.Upstream503, apperr.UpstreamPayloadRejected:
		SendError(c, http.StatusBadGateway, "upstream failure", err)
	case apperr.Cancelled:
		SendError(c, http.StatusConflict, "operation cancelled", err)
	default:
		SendInternalError(c, err)
	}
}
