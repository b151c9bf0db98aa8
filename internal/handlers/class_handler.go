package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/school-system/portal/internal/repository"
)

// ClassHandler serves the read-only roster and subject offerings of a class.
type ClassHandler struct {
	roster   repository.RosterStore
	subjects repository.SubjectStore
}

func NewClassHandler(roster repository.RosterStore, subjects repository.SubjectStore) *ClassHandler {
	return &ClassHandler{roster: roster, subjects: subjects}
}

// @Summary Students currently in a class
// @Tags classes
// @Produce json
// @Param name path string true "Class"
// @Security BearerAuth
// @Router /api/v1/classes/{name}/students [get]
func (h *ClassHandler) Students(c *gin.Context) {
	students, err := h.roster.StudentsInClass(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, students)
}

// @Summary Subjects offered in a class
// @Tags classes
// @Produce json
// @Param name path string true "Class"
// @Security BearerAuth
// @Router /api/v1/classes/{name}/subjects [get]
func (h *ClassHandler) Subjects(c *gin.Context) {
	offerings, err := h.subjects.Offerings(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type offeringView struct {
		SubjectID  string `json:"subject_id"`
		SubSubject string `json:"sub_subject,omitempty"`
		Label      string `json:"label"`
	}
	views := make([]offeringView, 0, len(offerings))
	for _, o := range offerings {
		views = append(views, offeringView{
			SubjectID:  o.SubjectID.String(),
			SubSubject: o.SubSubject,
			Label:      o.Label(),
		})
	}
	c.JSON(http.StatusOK, views)
}
