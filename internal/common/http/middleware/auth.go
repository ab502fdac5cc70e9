package middleware

import (
	"context"
	"strings"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	// TokenCookieName is the cookie carrying the access token for browser clients.
	TokenCookieName = "token"

	RoleUser  = "user"
	RoleAdmin = "admin"

	identityContextKey = "identity"
	userIDContextKey   = "user_id"
	userRoleContextKey = "user_role"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    int64
	Role      string
	Token     string
	ExpiresAt time.Time
}

// IsAdmin reports whether the caller has the admin role.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, RoleAdmin)
}

// Authenticator validates a raw access token.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (Identity, error)
}

// AuthMiddleware enforces token validation and optional role checks.
func AuthMiddleware(auth Authenticator, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth service unavailable")
			return
		}

		raw := ExtractToken(c)
		if raw == "" {
			response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "Token is not present")
			return
		}
		identity, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		if len(roles) > 0 && !hasRole(identity.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the caller's identity when a valid token is
// present and lets anonymous or badly authenticated requests through as anonymous.
func OptionalAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth != nil {
			if raw := ExtractToken(c); raw != "" {
				if identity, err := auth.Authenticate(c.Request.Context(), raw); err == nil {
					setIdentity(c, identity)
				}
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity Identity) {
	c.Set(identityContextKey, identity)
	c.Set(userIDContextKey, identity.UserID)
	c.Set(userRoleContextKey, identity.Role)
	ctx := context.WithValue(c.Request.Context(), contextkey.UserID, identity.UserID)
	ctx = context.WithValue(ctx, contextkey.UserRole, identity.Role)
	c.Request = c.Request.WithContext(ctx)
}

// CurrentIdentity returns the identity stored by AuthMiddleware.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

// ExtractToken reads the token cookie first, then the bearer header.
func ExtractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(TokenCookieName); err == nil && cookie != "" {
		return cookie
	}
	return extractBearerToken(c.GetHeader("Authorization"))
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
