package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AetherKnowledge/capstone/pkg/jwt"
	"github.com/AetherKnowledge/capstone/pkg/response"
)

const (
	UserIDKey     = "user_id"
	EmailKey      = "email"
	UsernameKey   = "username"
	PictureKey    = "picture"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenSources names where an identity token may be found besides the
// Authorization header.
type TokenSources struct {
	QueryParam string
	CookieName string
}

// ExtractToken returns the identity token from, in order, the bearer
// header, the query parameter, or the session cookie.
func ExtractToken(r *http.Request, src TokenSources) string {
	if h := r.Header.Get(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix))
	}
	if src.QueryParam != "" {
		if t := r.URL.Query().Get(src.QueryParam); t != "" {
			return t
		}
	}
	if src.CookieName != "" {
		if c, err := r.Cookie(src.CookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// AuthMiddleware validates identity tokens locally.
type AuthMiddleware struct {
	tokens  *jwt.Manager
	sources TokenSources
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *jwt.Manager, sources TokenSources) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:  tokens,
		sources: sources,
	}
}

// RequireAuth returns a Gin middleware that rejects requests without a valid token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c.Request, m.sources)
		if token == "" {
			response.Unauthorized(c, "Unauthorized")
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "Unauthorized")
			return
		}

		c.Set(UserIDKey, claims.UserID())
		c.Set(EmailKey, claims.Email)
		c.Set(UsernameKey, claims.Name)
		c.Set(PictureKey, claims.Picture)

		c.Next()
	}
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
