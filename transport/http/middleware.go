package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/service"
)

const (
	userAddressKey = "userAddress"

	// SessionCookie carries the session credential for browser clients
	SessionCookie = "session"
)

// AuthMiddleware creates middleware that validates session tokens from the
// Authorization header or the session cookie
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
				token, ok = cookie, true
			}
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		// Validate the token
		address, err := authService.ValidateSession(c.Request.Context(), token)
		if err != nil {
			switch {
			case err == core.ErrTokenExpired:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			case core.CategoryOf(err) == core.CategoryConfig:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": messageOf(err)})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		// Set the user address in the context
		c.Set(userAddressKey, address)

		c.Next()
	}
}

// RequestLogger logs each request with a sequential id
func RequestLogger(logger log.Logger) gin.HandlerFunc {
	var counter uint64
	return func(c *gin.Context) {
		reqID := atomic.AddUint64(&counter, 1)
		start := time.Now()
		logger.Debug("Got request", "req", reqID, "method", c.Request.Method, "path", c.Request.URL.Path, "from", c.ClientIP())

		c.Next()

		status := c.Writer.Status()
		ctx := []interface{}{"req", reqID, "status", status, "elapsed", time.Since(start)}
		if status >= http.StatusInternalServerError {
			logger.Error("Completed request", ctx...)
			return
		}
		logger.Debug("Completed request", ctx...)
	}
}
