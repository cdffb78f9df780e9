package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func parseQuizID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quiz ID"})
		return 0, false
	}
	return uint(id), true
}
