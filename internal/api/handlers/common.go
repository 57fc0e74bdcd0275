package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencohort/outpost/internal/releases"
)

// respondError maps service-layer errors to HTTP status codes. Validation
// failures carry their detail; authentication and authorization failures are
// deliberately uninformative.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, releases.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found"})
	case errors.Is(err, releases.ErrNotAuthenticated):
		c.JSON(http.StatusForbidden, gin.H{"detail": "Not authenticated"})
	case errors.Is(err, releases.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"detail": "Forbidden"})
	default:
		var verr *releases.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": verr.Detail})
			return
		}
		slog.Error("unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
}
