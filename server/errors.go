package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drawduel/clipscore/service"
)

var errUnauthorized = errors.New("unauthorized")

// mapError turns a rating error into an HTTP status and a client-safe message.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidImage):
		return http.StatusBadRequest, "invalid image"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "inference timed out"
	case errors.Is(err, service.ErrInvalidLogit):
		return http.StatusInternalServerError, "inference produced an invalid score"
	default:
		return http.StatusInternalServerError, "inference failed"
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
