package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"coursequiz/middleware"
	"coursequiz/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindAttemptLimitExceeded, services.KindConflict:
		return http.StatusConflict
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	if services.KindOf(err) == services.KindAttemptLimitExceeded {
		body["code"] = services.KindAttemptLimitExceeded.String()
	}
	c.JSON(status, body)
}

func currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(middleware.ContextUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, false
	}
	return userID.(uint), true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
