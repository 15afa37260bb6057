package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/models"
)

const currentUserKey = "current_user"

// SessionResolver turns a session token into its user.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (models.User, error)
}

// RequireSession aborts with 401 unless the request carries a valid session
// token in the cookie or an Authorization bearer header.
func RequireSession(resolver SessionResolver, cookieName string) gin.HandlerFunc {
	return session(resolver, cookieName, true)
}

// OptionalSession attaches the user when a valid token is present and lets
// anonymous requests through.
func OptionalSession(resolver SessionResolver, cookieName string) gin.HandlerFunc {
	return session(resolver, cookieName, false)
}

func session(resolver SessionResolver, cookieName string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			if required {
				abortWithError(c, apperr.Auth(apperr.ErrUnauthorized))
				return
			}
			c.Next()
			return
		}

		user, err := resolver.CurrentUser(c.Request.Context(), token)
		if err != nil {
			if required {
				abortWithError(c, err)
				return
			}
			c.Next()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
