package handlers

import (
	"github.com/gin-gonic/gin"

	"home-services-api/internal/middleware"
)

// ServeWS handles GET /ws
// Claims are optional here: the hub rejects unauthenticated connections
// over the socket with an Error event before closing it.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)
	h.ws.Serve(c.Writer, c.Request, h.hub, claims.Realtime())
}
