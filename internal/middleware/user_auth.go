package middleware

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserAuth validates user JWT tokens and injects the userId into the context.
func UserAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseBearer(c, secret)
		if err != nil {
			log.Println("[AUTH] [ERROR] token rejected:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextUserID, id.userID)
		c.Set(ContextRole, id.role)
		c.Next()
	}
}

// OptionalUserAuth lets anonymous requests through for guest carts but still
// rejects a token that is present and invalid.
func OptionalUserAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseBearer(c, secret)
		if errors.Is(err, errMissingToken) {
			c.Next()
			return
		}
		if err != nil {
			log.Println("[AUTH] [ERROR] token rejected:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextUserID, id.userID)
		c.Set(ContextRole, id.role)
		c.Next()
	}
}
