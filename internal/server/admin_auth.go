package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminTokenRequired authenticates operator calls with the static bearer
// token from ADMIN_API_TOKEN.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	expected := []byte(s.cfg.AdminAPIToken)
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(parts[1]), expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
