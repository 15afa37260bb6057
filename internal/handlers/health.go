package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecks are optional probes; a nil probe reports "disabled".
type HealthChecks struct {
	Database func(ctx context.Context) error
	Cache    func(ctx context.Context) error
	Storage  func(ctx context.Context) error
}

type healthResponse struct {
	OK          bool   `json:"ok"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	Environment string `json:"environment"`
}

// Health always answers 200 with ok=true while the process is serving; the
// per-dependency fields report "ok", "error" or "disabled".
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, healthResponse{
		OK:          true,
		Database:    h.probe(ctx, "database", h.health.Database),
		Cache:       h.probe(ctx, "cache", h.health.Cache),
		Storage:     h.probe(ctx, "storage", h.health.Storage),
		Environment: h.cfg.Environment,
	})
}

func (h HandlerSet) probe(ctx context.Context, name string, check func(context.Context) error) string {
	if check == nil {
		return "disabled"
	}
	if err := check(ctx); err != nil {
		h.log.Error().Err(err).Str("dependency", name).Msg("health probe failed")
		return "error"
	}
	return "ok"
}
