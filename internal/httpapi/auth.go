package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// RequireAPIKey rejects requests without the shared secret. The liveness
// endpoint stays open.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/health" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireAdminKey guards mutating admin routes when an admin secret is
// configured. The secret may be stored bcrypt-hashed ($2…); otherwise it
// is compared directly.
func RequireAdminKey(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader("X-Admin-Key"))
		if got == "" || !adminKeyMatches(adminKey, got) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Admin key required"})
			return
		}
		c.Next()
	}
}

func adminKeyMatches(configured, got string) bool {
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(got)) == 1
}
