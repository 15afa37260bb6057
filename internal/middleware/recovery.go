package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 with the generic error body.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("request_id", RequestIDFrom(c)).
				Str("route", c.FullPath()).
				Msg("panic recovered")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		}()
		c.Next()
	}
}
