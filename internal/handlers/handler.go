package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"home-services-api/internal/auth"
	"home-services-api/internal/dispatch"
	"home-services-api/internal/middleware"
	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
	"home-services-api/internal/transport/ws"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	DB       *gorm.DB
	Tokens   *auth.Manager
	Registry *presence.Registry
	Hub      *realtime.Hub
	Dispatch *dispatch.Service
	WS       *ws.Server // nil when the websocket endpoint is not served
	Logger   zerolog.Logger
}

type Handler struct {
	db       *gorm.DB
	tokens   *auth.Manager
	registry *presence.Registry
	hub      *realtime.Hub
	dispatch *dispatch.Service
	ws       *ws.Server
	logger   zerolog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		db:       d.DB,
		tokens:   d.Tokens,
		registry: d.Registry,
		hub:      d.Hub,
		dispatch: d.Dispatch,
		ws:       d.WS,
		logger:   d.Logger.With().Str("component", "Handlers").Logger(),
	}
}

// caller returns the identity of an authenticated User or Helper. Admin
// tokens have no presence identity and get 403.
func caller(c *gin.Context) (presence.Identity, bool) {
	v, ok := c.Get(middleware.IdentityKey)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only users and helpers can use this endpoint"})
		return presence.Identity{}, false
	}
	return v.(presence.Identity), true
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type pageQuery struct {
	Page  int
	Limit int
}

func (p pageQuery) Offset() int { return (p.Page - 1) * p.Limit }

// parsePage reads page (default 1) and limit (default 20, max 100).
func parsePage(c *gin.Context) pageQuery {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return pageQuery{Page: page, Limit: limit}
}

// nextLink points at the following page, or is nil on the last one.
func nextLink(c *gin.Context, p pageQuery, total int64) *string {
	if int64(p.Page*p.Limit) >= total {
		return nil
	}
	q := url.Values{}
	for k, v := range c.Request.URL.Query() {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(p.Page+1))
	q.Set("limit", strconv.Itoa(p.Limit))
	link := c.Request.URL.Path + "?" + q.Encode()
	return &link
}
