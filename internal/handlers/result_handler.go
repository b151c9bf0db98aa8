package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/portal/internal/export"
	"github.com/school-system/portal/internal/services"
)

type ResultHandler struct {
	results *services.ResultsService
	marks   *services.MarkService
}

func NewResultHandler(results *services.ResultsService, marks *services.MarkService) *ResultHandler {
	return &ResultHandler{results: results, marks: marks}
}

// @Summary Exams of a class, newest first
// @Tags results
// @Produce json
// @Param class_name query string true "Class"
// @Security BearerAuth
// @Router /api/v1/exams [get]
func (h *ResultHandler) ListExams(c *gin.Context) {
	className := c.Query("class_name")
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_name is required"})
		return
	}
	exams, err := h.results.ListExams(c.Request.Context(), className)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exams)
}

// @Summary Results matrix of an exam
// @Tags results
// @Produce json
// @Param id path string true "Exam ID"
// @Param class_name query string false "Viewed class, defaults to the exam's class"
// @Success 200 {object} grading.Matrix
// @Security BearerAuth
// @Router /api/v1/exams/{id}/results [get]
func (h *ResultHandler) Matrix(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}
	m, err := h.results.Matrix(c.Request.Context(), examID, c.Query("class_name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary Download the results matrix
// @Tags results
// @Produce text/csv,application/pdf,text/plain
// @Param id path string true "Exam ID"
// @Param class_name query string false "Viewed class"
// @Param format query string false "csv, pdf or txt"
// @Security BearerAuth
// @Router /api/v1/exams/{id}/results/export [get]
func (h *ResultHandler) Export(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.results.Matrix(c.Request.Context(), examID, c.Query("class_name"))
	if err != nil {
		respondError(c, err)
		return
	}

	title := fmt.Sprintf("%s results", m.ClassName)
	var buf bytes.Buffer
	if err := export.Write(&buf, format, title, m); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(title)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

type WriteMarkRequest struct {
	StudentID  string   `json:"student_id" binding:"required,uuid"`
	ExamID     string   `json:"exam_id" binding:"required,uuid"`
	SubjectID  string   `json:"subject_id" binding:"required,uuid"`
	SubSubject string   `json:"sub_subject"`
	ClassName  string   `json:"class_name"`
	Marks      *float64 `json:"marks" binding:"required,min=0,max=100"`
	Remarks    string   `json:"remarks"`
}

// @Summary Write one mark
// @Description Creates the mark or overwrites the existing one for the same student, exam and subject.
// @Tags results
// @Accept json
// @Produce json
// @Param request body WriteMarkRequest true "Mark"
// @Success 200 {object} models.Mark
// @Success 201 {object} models.Mark
// @Security BearerAuth
// @Router /api/v1/marks [post]
func (h *ResultHandler) WriteMark(c *gin.Context) {
	ac, ok := authContext(c)
	if !ok {
		return
	}

	var req WriteMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mark, created, err := h.marks.WriteMark(c.Request.Context(), ac, services.WriteMarkInput{
		StudentID:  uuid.MustParse(req.StudentID),
		ExamID:     uuid.MustParse(req.ExamID),
		SubjectID:  uuid.MustParse(req.SubjectID),
		SubSubject: req.SubSubject,
		ClassName:  req.ClassName,
		Marks:      *req.Marks,
		Remarks:    req.Remarks,
		IP:         c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, mark)
}

// @Summary Delete one mark
// @Tags results
// @Param id path string true "Mark ID"
// @Security BearerAuth
// @Router /api/v1/marks/{id} [delete]
func (h *ResultHandler) DeleteMark(c *gin.Context) {
	ac, ok := authContext(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mark ID"})
		return
	}
	if err := h.marks.DeleteMark(c.Request.Context(), ac, id, c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mark deleted"})
}
