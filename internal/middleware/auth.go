package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"community-chat/internal/identity"
	"community-chat/internal/models"
)

// Context keys set by AuthMiddleware.
const (
	PrincipalKey = "principal"
	UserIDKey    = "userID"
)

// AuthMiddleware validates the Authorization header with the authenticator.
func AuthMiddleware(auth identity.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := parseBearer(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(UserIDKey, principal.UserID)
		c.Next()
	}
}

// Principal returns the principal stored by AuthMiddleware.
func Principal(c *gin.Context) (models.Principal, bool) {
	val, ok := c.Get(PrincipalKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}

// TokenFromRequest reads a bearer token from the Authorization header, falling
// back to the token query parameter browsers use for websocket handshakes.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, _ := parseBearer(header)
		return token
	}
	return r.URL.Query().Get("token")
}

func parseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
