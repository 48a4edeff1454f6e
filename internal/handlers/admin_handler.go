package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
)

// Broadcast audiences.
const (
	AudienceUsers   = "users"
	AudienceHelpers = "helpers"
	AudienceAll     = "all"
)

type BroadcastRequest struct {
	Title    string `json:"title" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Audience string `json:"audience" binding:"required,oneof=users helpers all"`
}

type ConnectionsResponse struct {
	Identities  int                                     `json:"identities"`
	Connections int                                     `json:"connections"`
	Online      map[presence.Identity][]presence.Handle `json:"online"`
	Groups      map[string]int                          `json:"groups,omitempty"`
}

// Broadcast handles POST /api/admin/broadcast
// Nothing is persisted; only connected clients see the announcement.
func (h *Handler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := realtime.NewEvent(realtime.EventReceiveNotification,
		realtime.Alert(req.Title, req.Message, "announcement", nil, time.Now().UTC()))
	ctx := c.Request.Context()
	if req.Audience == AudienceUsers || req.Audience == AudienceAll {
		h.dispatch.ToAllUsers(ctx, ev)
	}
	if req.Audience == AudienceHelpers || req.Audience == AudienceAll {
		h.dispatch.ToAllHelpers(ctx, ev)
	}

	c.JSON(http.StatusAccepted, gin.H{"audience": req.Audience})
}

// ListConnections handles GET /api/admin/connections
func (h *Handler) ListConnections(c *gin.Context) {
	identities, connections := h.registry.Stats()
	resp := ConnectionsResponse{
		Identities:  identities,
		Connections: connections,
		Online:      h.registry.GetAllConnections(),
	}
	if h.ws != nil {
		resp.Groups = h.ws.GroupSizes()
	}
	c.JSON(http.StatusOK, resp)
}

// ForceDisconnect handles DELETE /api/admin/connections/:kind/:id
// Every connection of the identity is closed.
func (h *Handler) ForceDisconnect(c *gin.Context) {
	id, err := presence.ParseIdentity(c.Param("kind"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	closed := h.hub.Disconnect(c.Request.Context(), id)
	if closed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Identity is not connected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": id, "closed": closed})
}
