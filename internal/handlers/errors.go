package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/services"
)

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	var fe *services.FetchError
	switch {
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	case errors.Is(err, services.ErrExamNotFound),
		errors.Is(err, services.ErrMarkNotFound),
		errors.Is(err, services.ErrStudentNotFound),
		errors.Is(err, services.ErrBoundaryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSubjectNotOffered),
		errors.Is(err, services.ErrInvalidBoundary),
		errors.Is(err, services.ErrInvalidRole):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBoundariesExist):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &fe):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to load results",
			"sources": services.FailedSources(err),
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func authContext(c *gin.Context) (auth.Context, bool) {
	ac, ok := auth.From(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	}
	return ac, ok
}
