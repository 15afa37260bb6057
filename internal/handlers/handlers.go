package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/config"
	"smartcrop/api/internal/middleware"
	"smartcrop/api/internal/roomtoken"
	"smartcrop/api/internal/service"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth      *service.AuthService
	Chat      *service.ChatService
	Diagnoses *service.DiagnosisService
	Rooms     *roomtoken.Issuer
	Health    HealthChecks
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	auth      *service.AuthService
	chat      *service.ChatService
	diagnoses *service.DiagnosisService
	rooms     *roomtoken.Issuer
	health    HealthChecks
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, svc Services) HandlerSet {
	return HandlerSet{
		log:       log,
		cfg:       cfg,
		auth:      svc.Auth,
		chat:      svc.Chat,
		diagnoses: svc.Diagnoses,
		rooms:     svc.Rooms,
		health:    svc.Health,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	cookie := h.cfg.Security.CookieName
	requireSession := middleware.RequireSession(h.auth, cookie)
	optionalSession := middleware.OptionalSession(h.auth, cookie)

	router.GET("/health", h.Health)

	if h.cfg.LiveKit.RequireSession {
		router.GET("/token", requireSession, h.Token)
	} else {
		router.GET("/token", h.Token)
	}

	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", requireSession, h.Me)
	}

	router.POST("/chat", h.Chat)

	disease := router.Group("/disease")
	{
		disease.POST("/predict", optionalSession, h.PredictDisease)
		disease.GET("/history", requireSession, h.DiseaseHistory)
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(apperr.Validation("body", "Invalid request body"))
		return false
	}
	return true
}
