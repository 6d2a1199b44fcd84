package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chronozoom/pkg/models"
)

const CtxUserKey = "auth_user"

// UserLookup finds the stored user row for an external identity.
type UserLookup interface {
	UserByIdentity(ctx context.Context, nameIdentifier, identityProvider string) (*models.User, error)
}

// IdentityMiddleware resolves the acting identity of a request. Requests
// without an Authorization header continue anonymously; a header that does
// not hold a valid bearer token is rejected.
func IdentityMiddleware(tokens TokenService, users UserLookup, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}

		raw := extractBearerToken(h)
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "Unauthenticated"})
			c.Abort()
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			log.Debug().Err(err).Msg("rejecting bearer token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "Unauthenticated"})
			c.Abort()
			return
		}

		user := claims.User()
		if users != nil {
			stored, err := users.UserByIdentity(c.Request.Context(), claims.NameIdentifier, claims.IdentityProvider)
			if err != nil {
				log.Error().Err(err).Msg("resolve user identity")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "identity lookup failed"})
				c.Abort()
				return
			}
			if stored != nil {
				user = stored
			}
		}

		c.Set(CtxUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the acting identity, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func extractBearerToken(header string) string {
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
