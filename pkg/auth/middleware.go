package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jhjames1/peerchat/pkg/models"
)

const actorKey = "peerchat.actor"

// Middleware rejects requests without a valid bearer token and stores the
// resolved actor on the gin context. The token may also be passed as the
// "token" query parameter, which browsers need for WebSocket upgrades.
func Middleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "kind": "authorization"})
			return
		}

		actor, err := issuer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "kind": "authorization"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by Middleware.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// RequestActor resolves the request's bearer token, if any, for endpoints
// that do not require one.
func RequestActor(issuer *TokenIssuer, c *gin.Context) (models.Actor, bool) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		return models.Actor{}, false
	}
	actor, err := issuer.Verify(token)
	if err != nil {
		return models.Actor{}, false
	}
	return actor, true
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
