package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/middleware"
	"smartcrop/api/internal/models"
	"smartcrop/api/internal/service"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Signup(c.Request.Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.setSessionCookie(c, result.Token)
	c.JSON(http.StatusCreated, authResponse{Message: "Signup successful", Token: result.Token})
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.setSessionCookie(c, result.Token)
	c.JSON(http.StatusOK, authResponse{Message: "Login successful", Token: result.Token})
}

// Logout only clears the cookie. Issued tokens stay valid until they expire.
func (h HandlerSet) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Security.CookieName, "", -1, "/", "", h.cfg.Security.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperr.Auth(apperr.ErrUnauthorized))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

func (h HandlerSet) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		h.cfg.Security.CookieName,
		token,
		int(h.auth.SessionTTL()/time.Second),
		"/",
		"",
		h.cfg.Security.CookieSecure,
		true,
	)
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
