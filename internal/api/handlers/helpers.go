package handlers

import "github.com/gin-gonic/gin"

// IdentityKey is the gin context key the auth middleware stores the caller under.
const IdentityKey = "identity"

func identityOf(c *gin.Context) string {
	return c.GetString(IdentityKey)
}
