package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/xrpauth/core"
)

// statusOf maps service errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrConfig):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrTokenExpired),
		errors.Is(err, core.ErrTokenInvalid),
		errors.Is(err, core.ErrTokenMalformed),
		errors.Is(err, core.ErrChallengeReused):
		return http.StatusUnauthorized
	default:
		// validation, signature, upstream and unknown failures
		return http.StatusBadRequest
	}
}

// messageOf returns the client facing text of err
func messageOf(err error) string {
	if core.CategoryOf(err) == core.CategoryUnknown {
		return "authentication failed"
	}
	return err.Error()
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": messageOf(err)})
}
