package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"home-services-api/internal/auth"
	"home-services-api/internal/config"
	"home-services-api/internal/dispatch"
	"home-services-api/internal/middleware"
	"home-services-api/internal/models"
	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
	"home-services-api/internal/testutil"
)

type fixture struct {
	router    *gin.Engine
	handler   *Handler
	deps      Deps
	transport *testutil.RecordingTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	registry := presence.NewRegistry(presence.Options{})
	transport := testutil.NewRecordingTransport()
	hub := realtime.NewHub(registry, transport, zerolog.Nop())
	svc := dispatch.New(registry, hub, time.Second, zerolog.Nop())
	hub.OnPresenceChange(svc.NotifyPresenceChanged)

	deps := Deps{
		DB:       db,
		Tokens:   auth.NewManager(config.Default().Auth),
		Registry: registry,
		Hub:      hub,
		Dispatch: svc,
		Logger:   zerolog.Nop(),
	}
	h := New(deps)

	r := gin.New()
	r.POST("/api/register", h.Register)
	r.POST("/api/login", h.Login)

	api := r.Group("/api", middleware.JWTAuthMiddleware(deps.Tokens))
	api.GET("/presence/:kind/:id", h.GetPresence)
	api.GET("/bookings", h.ListBookings)
	api.POST("/bookings", h.CreateBooking)
	api.PATCH("/bookings/:id/status", h.UpdateBookingStatus)
	api.GET("/notifications", h.ListNotifications)
	api.PATCH("/notifications/:id/read", h.MarkNotificationRead)
	api.POST("/chat/conversations", h.StartConversation)
	api.GET("/chat/conversations", h.ListConversations)
	api.GET("/chat/conversations/:id/messages", h.ListMessages)
	api.PATCH("/chat/conversations/:id/read", h.MarkConversationRead)
	api.POST("/chat/messages", h.SendMessage)
	api.POST("/admin/broadcast", h.Broadcast)
	api.GET("/admin/connections", h.ListConnections)
	api.DELETE("/admin/connections/:kind/:id", h.ForceDisconnect)

	return &fixture{router: r, handler: h, deps: deps, transport: transport}
}

// account stores an account and returns it with a valid token.
func (f *fixture) account(t *testing.T, role auth.Role, username string) (models.Account, string) {
	t.Helper()
	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	acct := models.Account{Username: username, PasswordHash: hash, Role: role}
	require.NoError(t, f.deps.DB.Create(&acct).Error)

	token, err := f.deps.Tokens.GenerateToken(acct.ID, role, username)
	require.NoError(t, err)
	return acct, token
}

// connect opens an authenticated hub session for acct on handle.
func (f *fixture) connect(t *testing.T, handle presence.Handle, acct models.Account) *realtime.Session {
	t.Helper()
	f.transport.Connect(handle)
	s := realtime.NewSession(handle)
	require.NoError(t, f.deps.Hub.OnConnect(context.Background(), s, realtime.Claims{
		Role:    string(acct.Role),
		Subject: strconv.FormatInt(acct.ID, 10),
	}))
	return s
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func identityOf(t *testing.T, acct models.Account) presence.Identity {
	t.Helper()
	id, err := acct.Identity()
	require.NoError(t, err)
	return id
}

type page[T any] struct {
	Value    []T     `json:"value"`
	Count    int64   `json:"@odata.count"`
	NextLink *string `json:"@odata.nextLink"`
}
