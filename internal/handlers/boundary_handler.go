package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/portal/internal/services"
)

type BoundaryHandler struct {
	boundaries *services.BoundaryService
}

func NewBoundaryHandler(boundaries *services.BoundaryService) *BoundaryHandler {
	return &BoundaryHandler{boundaries: boundaries}
}

// @Summary Grade boundaries of a class
// @Tags boundaries
// @Produce json
// @Param class_name query string true "Class"
// @Security BearerAuth
// @Router /api/v1/grade-boundaries [get]
func (h *BoundaryHandler) List(c *gin.Context) {
	className := c.Query("class_name")
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_name is required"})
		return
	}
	rows, err := h.boundaries.List(c.Request.Context(), className)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// @Summary Create a grade boundary
// @Tags boundaries
// @Accept json
// @Produce json
// @Param request body services.BoundaryInput true "Boundary"
// @Success 201 {object} models.GradeBoundary
// @Security BearerAuth
// @Router /api/v1/grade-boundaries [post]
func (h *BoundaryHandler) Create(c *gin.Context) {
	ac, ok := authContext(c)
	if !ok {
		return
	}
	var in services.BoundaryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.boundaries.Create(c.Request.Context(), ac, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// @Summary Replace a grade boundary
// @Tags boundaries
// @Accept json
// @Produce json
// @Param id path string true "Boundary ID"
// @Param request body services.BoundaryInput true "Boundary"
// @Security BearerAuth
// @Router /api/v1/grade-boundaries/{id} [put]
func (h *BoundaryHandler) Update(c *gin.Context) {
	ac, ok := authContext(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid boundary ID"})
		return
	}
	var in services.BoundaryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.boundaries.Update(c.Request.Context(), ac, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary Delete a grade boundary
// @Tags boundaries
// @Param id path string true "Boundary ID"
// @Security BearerAuth
// @Router /api/v1/grade-boundaries/{id} [delete]
func (h *BoundaryHandler) Delete(c *gin.Context) {
	ac, ok := authContext(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid boundary ID"})
		return
	}
	if err := h.boundaries.Delete(c.Request.Context(), ac, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Grade boundary deleted"})
}

// @Summary Seed the default mark scale for a class
// @Tags boundaries
// @Param class_name query string true "Class"
// @Security BearerAuth
// @Router /api/v1/grade-boundaries/defaults [post]
func (h *BoundaryHandler) SeedDefaults(c *gin.Context) {
	ac, ok := authContext(c)
	if !ok {
		return
	}
	className := c.Query("class_name")
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_name is required"})
		return
	}
	n, err := h.boundaries.SeedDefaults(c.Request.Context(), ac, className)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": n})
}
