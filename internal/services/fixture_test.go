package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository/inmem"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	superAdmin = auth.Context{UserID: uuid.New(), Role: auth.RoleSuperAdmin, Email: "admin@school.test"}
	teacher    = auth.Context{UserID: uuid.New(), Role: auth.RoleTeacher, Email: "teacher@school.test"}
	librarian  = auth.Context{UserID: uuid.New(), Role: auth.RoleLibrarian}
)

type fixture struct {
	repo       *inmem.Repository
	cache      *cache.MemoryCache
	results    *ResultsService
	marks      *MarkService
	boundaries *BoundaryService

	subjects map[string]models.Subject
	opener   models.Exam
	midterm  models.Exam
}

var form4Subjects = []string{
	"English", "Kiswahili", "Mathematics", "Biology", "Chemistry", "Physics", "Agriculture", "Computer Studies",
}

// newFixture seeds Form 4 with the default mark scale, eight offered
// subjects and two exams a month apart.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	f := &fixture{repo: inmem.New(), cache: cache.NewMemory(), subjects: make(map[string]models.Subject)}
	audit := NewAuditService(f.repo)
	f.results = NewResultsService(f.repo, f.cache, time.Minute, grading.DefaultSevenSubjectPolicy, log)
	f.marks = NewMarkService(f.repo, f.cache, audit, log)
	f.boundaries = NewBoundaryService(f.repo, f.cache, audit, log)

	for _, title := range form4Subjects {
		s := f.repo.AddSubject(models.Subject{Title: title})
		f.subjects[title] = s
		f.repo.AddOffering(models.SubjectOffering{ClassName: "Form 4", SubjectID: s.ID})
	}
	_, err := f.boundaries.SeedDefaults(ctx, superAdmin, "Form 4")
	require.NoError(t, err)

	f.opener = f.repo.AddExam(models.Exam{ClassName: "Form 4", ExamName: "Opener", Term: "1", Year: 2024,
		StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)})
	f.midterm = f.repo.AddExam(models.Exam{ClassName: "Form 4", ExamName: "Mid Term", Term: "1", Year: 2024,
		StartDate: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)})
	return f
}

func (f *fixture) student(name, class string) models.Student {
	return f.repo.AddStudent(models.Student{FullName: name, AdmissionNumber: name[:3] + uuid.NewString()[:4], ClassName: class})
}

func (f *fixture) write(t *testing.T, ac auth.Context, studentID, examID uuid.UUID, subject string, marks float64) *models.Mark {
	t.Helper()
	m, _, err := f.marks.WriteMark(context.Background(), ac, WriteMarkInput{
		StudentID: studentID,
		ExamID:    examID,
		SubjectID: f.subjects[subject].ID,
		Marks:     marks,
	})
	require.NoError(t, err)
	return m
}

func offeringFor(class string, subjectID uuid.UUID) models.SubjectOffering {
	return models.SubjectOffering{ClassName: class, SubjectID: subjectID}
}

func examFor(class string) models.Exam {
	return models.Exam{ClassName: class, ExamName: "End Term", Term: "3", Year: 2023,
		StartDate: time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)}
}
