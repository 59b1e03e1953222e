package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// requireSecret authenticates via the X-Scheduler-Secret header or a Bearer
// token. Comparison is constant-time. Failures reject before any work.
func (s *Server) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.SchedulerSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "scheduler secret not configured"})
			return
		}

		supplied := c.GetHeader("X-Scheduler-Secret")
		if supplied == "" {
			auth := c.GetHeader("Authorization")
			if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
				supplied = after
			}
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.SchedulerSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
