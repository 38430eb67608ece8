package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids intermediaries and browsers from caching the response.
// Exam papers and results are per-student and must never be replayed from a
// shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, private")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
