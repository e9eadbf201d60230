package common

import "github.com/gin-gonic/gin"

// Fail writes {"error": msg}.
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, gin.H{"error": msg})
}

// FailWithDetails writes {"error": msg, "details": details}.
func FailWithDetails(c *gin.Context, httpStatus int, msg, details string) {
	c.JSON(httpStatus, gin.H{
		"error":   msg,
		"details": details,
	})
}
