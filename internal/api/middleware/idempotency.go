package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyKey    = "idempotency_key"
	maxIdempotencyKey = 255
)

// IdempotencyMiddleware captures the Idempotency-Key header for handlers and
// rejects keys that cannot be stored.
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if len(key) > maxIdempotencyKey || strings.ContainsAny(key, " \t\r\n") {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Idempotency-Key must be at most 255 characters without whitespace",
			})
			return
		}
		c.Set(idempotencyKey, key)
		c.Next()
	}
}

// IdempotencyKey returns the key captured by IdempotencyMiddleware, or ""
func IdempotencyKey(c *gin.Context) string {
	return c.GetString(idempotencyKey)
}
