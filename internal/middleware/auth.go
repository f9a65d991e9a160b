package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/api/handlers"
	"github.com/playmatatu/duel/internal/auth"
	"github.com/playmatatu/duel/internal/metrics"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireIdentity rejects requests without a valid bearer token and stores
// the caller's identity in the gin context.
func RequireIdentity(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := verifier.Verify(auth.TokenFromRequest(c.Request))
		if err != nil {
			metrics.AuthFailures.Inc()
			msg := "invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "missing token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(handlers.IdentityKey, identity)
		c.Next()
	}
}
