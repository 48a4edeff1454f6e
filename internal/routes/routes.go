package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"home-services-api/internal/auth"
	"home-services-api/internal/envelope"
	"home-services-api/internal/handlers"
	"home-services-api/internal/middleware"
)

// Options configures the router beyond the handler dependencies.
type Options struct {
	CorsOrigins []string
}

// Messages returns the per-endpoint envelope messages.
func Messages() *envelope.Messages {
	return envelope.NewMessages().
		Endpoint(http.MethodPost, "/api/register", envelope.Overrides{
			http.StatusCreated:  "Account registered successfully",
			http.StatusConflict: "Username already taken",
		}).
		Endpoint(http.MethodPost, "/api/login", envelope.Overrides{
			http.StatusOK:           "Login successful",
			http.StatusUnauthorized: "Invalid credentials",
		}).
		Endpoint(http.MethodPost, "/api/bookings", envelope.Overrides{
			http.StatusCreated: "Booking created successfully",
		}).
		Endpoint(http.MethodPatch, "/api/bookings/:id/status", envelope.Overrides{
			http.StatusOK:       "Booking status updated",
			http.StatusNotFound: "Booking not found",
			http.StatusConflict: "Booking status transition not allowed",
		}).
		Endpoint(http.MethodPatch, "/api/notifications/:id/read", envelope.Overrides{
			http.StatusOK: "Notification marked as read",
		}).
		Endpoint(http.MethodPost, "/api/chat/conversations", envelope.Overrides{
			http.StatusCreated: "Conversation started",
		}).
		Endpoint(http.MethodPost, "/api/chat/messages", envelope.Overrides{
			http.StatusCreated: "Message sent",
		}).
		Endpoint(http.MethodPatch, "/api/chat/conversations/:id/read", envelope.Overrides{
			http.StatusOK: "Messages marked as read",
		}).
		Endpoint(http.MethodPost, "/api/admin/broadcast", envelope.Overrides{
			http.StatusAccepted: "Broadcast sent",
		}).
		Endpoint(http.MethodDelete, "/api/admin/connections/:kind/:id", envelope.Overrides{
			http.StatusOK: "Connections closed",
		}).
		Group("/api/admin", envelope.Overrides{
			http.StatusForbidden: "Admin role required",
		})
}

func SetupRoutes(deps handlers.Deps, opts Options) *gin.Engine {
	h := handlers.New(deps)
	logger := deps.Logger.With().Str("component", "HTTP").Logger()

	// Create a new GIN Router
	ginRouter := gin.New()
	ginRouter.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.CORS(opts.CorsOrigins),
	)

	// Health check endpoint
	ginRouter.GET("/health", health(deps, logger))

	// The websocket route bypasses the envelope; the hub answers unauthenticated
	// sockets with an Error event.
	if deps.WS != nil {
		ginRouter.GET("/ws", middleware.OptionalJWTMiddleware(deps.Tokens), h.ServeWS)
	}

	messages := Messages()

	// Unmatched /api requests are enveloped like every other API response.
	ginRouter.HandleMethodNotAllowed = true
	ginRouter.NoRoute(apiEnvelope(messages), statusOnly(http.StatusNotFound))
	ginRouter.NoMethod(apiEnvelope(messages), statusOnly(http.StatusMethodNotAllowed))

	// Public routes (no authentication required)
	api := ginRouter.Group("/api", envelope.Middleware(messages))
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		protectedRoutes.GET("/presence/:kind/:id", h.GetPresence)

		protectedRoutes.GET("/bookings", h.ListBookings)
		protectedRoutes.POST("/bookings", middleware.RequireRole(auth.RoleUser), h.CreateBooking)
		protectedRoutes.PATCH("/bookings/:id/status", middleware.RequireRole(auth.RoleUser, auth.RoleHelper), h.UpdateBookingStatus)

		protectedRoutes.GET("/notifications", h.ListNotifications)
		protectedRoutes.PATCH("/notifications/:id/read", h.MarkNotificationRead)

		chat := protectedRoutes.Group("/chat", middleware.RequireRole(auth.RoleUser, auth.RoleHelper))
		chat.POST("/conversations", h.StartConversation)
		chat.GET("/conversations", h.ListConversations)
		chat.GET("/conversations/:id/messages", h.ListMessages)
		chat.PATCH("/conversations/:id/read", h.MarkConversationRead)
		chat.POST("/messages", h.SendMessage)

		admin := protectedRoutes.Group("/admin", middleware.RequireRole(auth.RoleAdmin))
		admin.POST("/broadcast", h.Broadcast)
		admin.GET("/connections", h.ListConnections)
		admin.DELETE("/connections/:kind/:id", h.ForceDisconnect)
	}

	return ginRouter
}

// apiEnvelope runs the envelope for /api paths and passes anything else
// through untouched.
func apiEnvelope(messages *envelope.Messages) gin.HandlerFunc {
	wrap := envelope.Middleware(messages)
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			wrap(c)
			return
		}
		c.Next()
	}
}

// statusOnly sets the status and leaves the body to whoever wraps it. gin
// writes its plain text default when nothing else does.
func statusOnly(status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(status)
	}
}

func health(deps handlers.Deps, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{
			"status":  "ok",
			"message": "Home services API is running",
		}
		if deps.Registry != nil {
			identities, connections := deps.Registry.Stats()
			resp["presence"] = gin.H{"identities": identities, "connections": connections}
		}
		if deps.DB != nil {
			if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				logger.Warn().Msg("Health check: database unreachable")
				resp["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, resp)
				return
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
