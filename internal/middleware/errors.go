package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"smartcrop/api/internal/apperr"
)

// Errors renders the last error a handler attached with c.Error as
// {"error": message}. Validation failures also list the rejected fields.
func Errors(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, message := apperr.Status(err)

		if status >= http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("request_id", RequestIDFrom(c)).
				Str("path", c.Request.URL.Path).
				Msg("request failed")
		}

		body := gin.H{"error": message}
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			body["errors"] = verr.Fields
		}
		c.JSON(status, body)
	}
}
