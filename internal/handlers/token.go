package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type tokenResponse struct {
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
	URL      string `json:"url,omitempty"`
}

// Token mints a voice room grant. The identity is read from "user", with
// "identity" accepted as an alias.
func (h HandlerSet) Token(c *gin.Context) {
	room := strings.TrimSpace(c.Query("room"))
	identity := strings.TrimSpace(c.Query("user"))
	if identity == "" {
		identity = strings.TrimSpace(c.Query("identity"))
	}

	grant, err := h.rooms.Issue(room, identity)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Token:    grant.Token,
		Room:     grant.Room,
		Identity: grant.Identity,
		URL:      h.cfg.LiveKit.URL,
	})
}
