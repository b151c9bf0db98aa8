package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository/inmem"
	"github.com/school-system/portal/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	router  *gin.Engine
	repo    *inmem.Repository
	role    auth.Role
	exam    models.Exam
	student models.Student
	english models.Subject
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	repo := inmem.New()
	c := cache.NewMemory()

	audit := services.NewAuditService(repo)
	results := services.NewResultsService(repo, c, time.Minute, grading.DefaultSevenSubjectPolicy, log)
	marks := services.NewMarkService(repo, c, audit, log)
	boundaries := services.NewBoundaryService(repo, c, audit, log)

	e := &env{repo: repo, role: auth.RoleTeacher}
	e.english = repo.AddSubject(models.Subject{Title: "English"})
	repo.AddOffering(models.SubjectOffering{ClassName: "Form 1", SubjectID: e.english.ID})
	e.student = repo.AddStudent(models.Student{FullName: "Amina Wanjiku", AdmissionNumber: "F1-001", ClassName: "Form 1"})
	e.exam = repo.AddExam(models.Exam{ClassName: "Form 1", ExamName: "Opener", Term: "1", Year: 2024,
		StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)})

	admin := auth.Context{UserID: uuid.New(), Role: auth.RoleSuperAdmin}
	_, err := boundaries.SeedDefaults(context.Background(), admin, "Form 1")
	require.NoError(t, err)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.Set(c, auth.Context{UserID: uuid.New(), Role: e.role})
		c.Next()
	})
	rh := NewResultHandler(results, marks)
	bh := NewBoundaryHandler(boundaries)
	r.GET("/exams", rh.ListExams)
	r.GET("/exams/:id/results", rh.Matrix)
	r.GET("/exams/:id/results/export", rh.Export)
	r.POST("/marks", rh.WriteMark)
	r.DELETE("/marks/:id", rh.DeleteMark)
	r.POST("/grade-boundaries", bh.Create)
	r.GET("/grade-boundaries", bh.List)
	e.router = r
	return e
}

func (e *env) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) markBody(marks float64) gin.H {
	return gin.H{
		"student_id": e.student.ID,
		"exam_id":    e.exam.ID,
		"subject_id": e.english.ID,
		"marks":      marks,
	}
}

func TestWriteMark_CreateThenUpdate(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/marks", e.markBody(72))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Mark
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "B+", created.Grade)

	w = e.do(http.MethodPost, "/marks", e.markBody(0))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Mark
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "E", updated.Grade)
	assert.Equal(t, 1, e.repo.MarkCount())
}

func TestWriteMark_Errors(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		role   auth.Role
		body   gin.H
		status int
	}{
		{"Out of range", auth.RoleTeacher, e.markBody(101), http.StatusBadRequest},
		{"Missing marks", auth.RoleTeacher, gin.H{"student_id": e.student.ID, "exam_id": e.exam.ID, "subject_id": e.english.ID}, http.StatusBadRequest},
		{"Bad uuid", auth.RoleTeacher, gin.H{"student_id": "x", "exam_id": e.exam.ID, "subject_id": e.english.ID, "marks": 50}, http.StatusBadRequest},
		{"Not offered", auth.RoleTeacher, gin.H{"student_id": e.student.ID, "exam_id": e.exam.ID, "subject_id": uuid.New(), "marks": 50}, http.StatusUnprocessableEntity},
		{"Unknown exam", auth.RoleTeacher, gin.H{"student_id": e.student.ID, "exam_id": uuid.New(), "subject_id": e.english.ID, "marks": 50}, http.StatusNotFound},
		{"Forbidden", auth.RoleLibrarian, e.markBody(50), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.role = tt.role
			w := e.do(http.MethodPost, "/marks", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, e.repo.MarkCount())
}

func TestMatrixEndpoint(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/marks", e.markBody(81)).Code)

	w := e.do(http.MethodGet, "/exams/"+e.exam.ID.String()+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var m grading.Matrix
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "Form 1", m.ClassName)
	require.Len(t, m.Standings, 1)
	assert.Equal(t, 12, m.Standings[0].TotalPoints)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/exams/nope/results", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/exams/"+uuid.NewString()+"/results", nil).Code)
}

func TestMatrixEndpoint_FetchFailure(t *testing.T) {
	e := newEnv(t)
	e.repo.FailOn(inmem.OpOfferings, errors.New("connection refused"))

	w := e.do(http.MethodGet, "/exams/"+e.exam.ID.String()+"/results", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	var body struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{services.SourceOfferings}, body.Sources)
}

func TestExportEndpoint(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/marks", e.markBody(81)).Code)
	base := "/exams/" + e.exam.ID.String() + "/results/export"

	w := e.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Form_1_results.csv")
	assert.Contains(t, w.Body.String(), "Amina Wanjiku")

	w = e.do(http.MethodGet, base+"?format=pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, base+"?format=xlsx", nil).Code)
}

func TestDeleteMarkEndpoint(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/marks", e.markBody(50))
	require.Equal(t, http.StatusCreated, w.Code)
	var m models.Mark
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/marks/"+m.ID.String(), nil).Code)

	e.role = auth.RoleHOD
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/marks/"+m.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/marks/"+m.ID.String(), nil).Code)
	assert.Equal(t, 0, e.repo.MarkCount())
}

func TestBoundaryEndpoints(t *testing.T) {
	e := newEnv(t)
	e.role = auth.RoleSuperAdmin

	w := e.do(http.MethodPost, "/grade-boundaries", gin.H{
		"class_name": "Form 1", "boundary_type": "overall", "min_marks": 90, "max_marks": 80, "grade": "A",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(http.MethodPost, "/grade-boundaries", gin.H{
		"class_name": "Form 1", "boundary_type": "overall", "boundary_for": "points", "min_points": 70, "max_points": 84, "grade": "A", "points": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/grade-boundaries?class_name=Form+1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []models.GradeBoundary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, len(services.DefaultMarkScale)+1)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/grade-boundaries", nil).Code)

	e.role = auth.RoleTeacher
	w = e.do(http.MethodPost, "/grade-boundaries", gin.H{"class_name": "Form 1", "boundary_type": "overall", "grade": "E"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
