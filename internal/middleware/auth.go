package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"home-services-api/internal/auth"
)

// Context keys set by the auth middlewares.
const (
	ClaimsKey   = "claims"
	IdentityKey = "identity"
	RoleKey     = "role"
	UsernameKey = "username"
)

// tokenFromRequest reads "Authorization: Bearer <token>", falling back to the
// token query parameter for browser websocket clients that cannot set headers.
func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(ClaimsKey, claims)
	c.Set(RoleKey, string(claims.Role))
	c.Set(UsernameKey, claims.Username)
	if id, err := claims.Identity(); err == nil {
		c.Set(IdentityKey, id)
	}
}

// JWTAuthMiddleware validates the bearer token and rejects the request when
// it is missing or invalid.
func JWTAuthMiddleware(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWTMiddleware stores the claims of a valid token but never aborts.
// The websocket route uses it so the hub can reject unauthenticated
// connections over the socket itself.
func OptionalJWTMiddleware(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := tokenFromRequest(c); tokenString != "" {
			if claims, err := tokens.ValidateToken(tokenString); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole must run after JWTAuthMiddleware.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := auth.Role(c.GetString(RoleKey))
		if !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role for this operation",
			})
			return
		}
		c.Next()
	}
}

// GetClaims returns the claims stored by either auth middleware.
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
