package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"home-services-api/internal/presence"
)

type PresenceResponse struct {
	Identity presence.Identity `json:"identity"`
	IsOnline bool              `json:"isOnline"`
	LastSeen *time.Time        `json:"lastSeen,omitempty"`
}

// GetPresence handles GET /api/presence/:kind/:id
func (h *Handler) GetPresence(c *gin.Context) {
	id, err := presence.ParseIdentity(c.Param("kind"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := PresenceResponse{Identity: id, IsOnline: h.dispatch.IsOnline(id)}
	if seen, ok := h.dispatch.LastSeen(id); ok {
		resp.LastSeen = &seen
	}
	c.JSON(http.StatusOK, resp)
}
