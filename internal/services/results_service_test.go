package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/repository/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMatrix_SevenSubjectRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amina := f.student("Amina", "Form 4")
	brian := f.student("Brian", "Form 4")

	// Points: 9, 7, 11, 10, 8, 12, 6, 9
	for subject, mark := range map[string]float64{
		"Biology": 67, "Chemistry": 57, "Physics": 77, "English": 72,
		"Kiswahili": 62, "Mathematics": 85, "Agriculture": 52, "Computer Studies": 66,
	} {
		f.write(t, teacher, amina.ID, f.midterm.ID, subject, mark)
	}
	for _, subject := range form4Subjects {
		f.write(t, teacher, brian.ID, f.midterm.ID, subject, 82)
	}

	m, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	require.True(t, m.SevenSubjects)
	require.Len(t, m.Standings, 2)

	top, second := m.Standings[0], m.Standings[1]
	assert.Equal(t, brian.ID, top.Student.ID)
	assert.Equal(t, 84, top.TotalPoints)
	assert.Equal(t, "A", top.OverallGrade)

	assert.Equal(t, amina.ID, second.Student.ID)
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, 65, second.TotalPoints)
	assert.Equal(t, []string{"Chemistry"}, second.DroppedSubjects)
	assert.Equal(t, "B", second.OverallGrade)
	assert.InDelta(t, 67.25, second.MeanMarks, 1e-9)
	assert.Equal(t, "B", second.MeanGrade)
}

func TestMatrix_PreviousExamDeltas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amina := f.student("Amina", "Form 4")
	brian := f.student("Brian", "Form 4")

	f.write(t, teacher, amina.ID, f.opener.ID, "English", 50)
	f.write(t, teacher, amina.ID, f.midterm.ID, "English", 70)
	f.write(t, teacher, brian.ID, f.midterm.ID, "English", 60)

	m, err := f.results.Matrix(ctx, f.midterm.ID, "Form 4")
	require.NoError(t, err)

	require.Len(t, m.MostImproved, 1)
	assert.Equal(t, amina.ID, m.MostImproved[0].StudentID)
	assert.Equal(t, 20.0, m.MostImproved[0].Delta)
	assert.Empty(t, m.MostDropped)

	for _, s := range m.Standings {
		if s.Student.ID == brian.ID {
			assert.Nil(t, s.TotalMarksDelta, "no previous marks means no delta")
		}
	}
	require.NotNil(t, m.MostImprovedSubject)
	assert.Equal(t, "English", m.MostImprovedSubject.Label)
	assert.Nil(t, m.NeedsAttention)

	opener, err := f.results.Matrix(ctx, f.opener.ID, "Form 4")
	require.NoError(t, err)
	assert.Empty(t, opener.MostImproved)
}

func TestMatrix_HistoricalExamRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.repo.AddExam(examFor("Form 3"))

	promoted := f.student("Promoted", "Form 4")
	f.student("Joined Later", "Form 4")
	_, _, err := f.marks.WriteMark(ctx, superAdmin, WriteMarkInput{
		StudentID: promoted.ID,
		ExamID:    old.ID,
		SubjectID: f.subjects["English"].ID,
		ClassName: "Form 4",
		Marks:     64,
	})
	require.NoError(t, err)

	m, err := f.results.Matrix(ctx, old.ID, "Form 4")
	require.NoError(t, err)
	require.Len(t, m.Standings, 1)
	assert.Equal(t, promoted.ID, m.Standings[0].Student.ID)

	live, err := f.results.Matrix(ctx, f.midterm.ID, "Form 4")
	require.NoError(t, err)
	assert.Len(t, live.Standings, 2)
}

func TestMatrix_FetchFailuresAreJoined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.FailOn(inmem.OpStudents, errors.New("connection reset"))
	f.repo.FailOn(inmem.OpBoundaries, errors.New("timeout"))

	m, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.Error(t, err)
	assert.Nil(t, m)
	assert.ElementsMatch(t, []string{SourceStudents, SourceBoundaries}, FailedSources(err))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))

	f.repo.FailOn(inmem.OpStudents, nil)
	f.repo.FailOn(inmem.OpBoundaries, nil)
	_, err = f.results.Matrix(ctx, f.midterm.ID, "")
	assert.NoError(t, err, "failures are not cached")
}

func TestMatrix_CachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amina := f.student("Amina", "Form 4")
	f.write(t, teacher, amina.ID, f.midterm.ID, "Physics", 70)

	first, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)

	// Served from cache even though the store is now failing
	f.repo.FailOn(inmem.OpMarks, errors.New("down"))
	cached, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	assert.Equal(t, first.Standings[0].TotalPoints, cached.Standings[0].TotalPoints)
	f.repo.FailOn(inmem.OpMarks, nil)

	f.write(t, teacher, amina.ID, f.midterm.ID, "Physics", 85)
	fresh, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	cell := fresh.Standings[0].Cell(fresh.Subjects, "Physics")
	require.NotNil(t, cell)
	assert.Equal(t, 85.0, cell.Marks)
	assert.Equal(t, "A", cell.Grade)
}

func TestMatrix_UnknownExam(t *testing.T) {
	f := newFixture(t)
	_, err := f.results.Matrix(context.Background(), uuid.New(), "Form 4")
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestMatrix_NonSevenSubjectClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, title := range []string{"Biology", "Chemistry", "Physics"} {
		f.repo.AddOffering(offeringFor("Form 2", f.subjects[title].ID))
	}
	_, err := f.boundaries.SeedDefaults(ctx, superAdmin, "Form 2")
	require.NoError(t, err)
	exam := f.repo.AddExam(examFor("Form 2"))
	s := f.student("Wanjiru", "Form 2")
	for _, title := range []string{"Biology", "Chemistry", "Physics"} {
		f.write(t, teacher, s.ID, exam.ID, title, 80)
	}

	m, err := f.results.Matrix(ctx, exam.ID, "")
	require.NoError(t, err)
	assert.False(t, m.SevenSubjects)
	assert.Equal(t, 36, m.Standings[0].TotalPoints, "all three sciences count")
	assert.Empty(t, m.Standings[0].DroppedSubjects)
	assert.Equal(t, m.Standings[0].MeanGrade, m.Standings[0].OverallGrade)
}

func TestMatrix_FractionalMarksUseSeededScale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.student("Wambui", "Form 4")

	english := f.write(t, teacher, s.ID, f.midterm.ID, "English", 79.5)
	assert.Equal(t, "A-", english.Grade)
	assert.Equal(t, 11, english.Points)
	f.write(t, teacher, s.ID, f.midterm.ID, "Kiswahili", 80)

	m, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	st := m.Standings[0]
	assert.InDelta(t, 79.75, st.MeanMarks, 1e-9)
	assert.Equal(t, "A-", st.MeanGrade)

	for _, avg := range m.SubjectAverages {
		if avg.Label == "English" {
			assert.Equal(t, "A-", avg.Grade)
		}
	}

	// Non 7-subject classes take the overall grade from the mean
	f.repo.AddOffering(offeringFor("Form 2", f.subjects["English"].ID))
	f.repo.AddOffering(offeringFor("Form 2", f.subjects["Physics"].ID))
	_, err = f.boundaries.SeedDefaults(ctx, superAdmin, "Form 2")
	require.NoError(t, err)
	exam := f.repo.AddExam(examFor("Form 2"))
	junior := f.student("Kiprop", "Form 2")
	f.write(t, teacher, junior.ID, exam.ID, "English", 74.5)
	f.write(t, teacher, junior.ID, exam.ID, "Physics", 74.6)

	m, err = f.results.Matrix(ctx, exam.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "B+", m.Standings[0].OverallGrade)
}

func TestMatrix_PreviousExamCorrectionRefreshesNextExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amina := f.student("Amina", "Form 4")

	opener := f.write(t, teacher, amina.ID, f.opener.ID, "English", 50)
	f.write(t, teacher, amina.ID, f.midterm.ID, "English", 70)

	m, err := f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	cell := m.Standings[0].Cell(m.Subjects, "English")
	require.NotNil(t, cell)
	require.NotNil(t, cell.Delta)
	assert.Equal(t, 20.0, *cell.Delta)

	f.write(t, teacher, amina.ID, f.opener.ID, "English", 90)
	m, err = f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	cell = m.Standings[0].Cell(m.Subjects, "English")
	require.NotNil(t, cell.Delta)
	assert.Equal(t, -20.0, *cell.Delta)
	require.NotNil(t, m.Standings[0].TotalMarksDelta)
	assert.Equal(t, -20.0, *m.Standings[0].TotalMarksDelta)

	require.NoError(t, f.marks.DeleteMark(ctx, superAdmin, opener.ID, ""))
	m, err = f.results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	assert.Nil(t, m.Standings[0].Cell(m.Subjects, "English").Delta)
	assert.Nil(t, m.Standings[0].TotalMarksDelta)
}

// interleavedCache runs beforeStore once, just before the first computed
// matrix is offered to the cache.
type interleavedCache struct {
	cache.Cache
	beforeStore func()
}

func (c *interleavedCache) SetIfGeneration(ctx context.Context, key, field string, gen int64, value any, ttl time.Duration) (bool, error) {
	if hook := c.beforeStore; hook != nil {
		c.beforeStore = nil
		hook()
	}
	return c.Cache.SetIfGeneration(ctx, key, field, gen, value, ttl)
}

func TestMatrix_WriteDuringBuildIsNotMasked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amina := f.student("Amina", "Form 4")
	f.write(t, teacher, amina.ID, f.midterm.ID, "Physics", 60)

	shared := &interleavedCache{Cache: f.cache}
	results := NewResultsService(f.repo, shared, time.Minute, grading.DefaultSevenSubjectPolicy, zap.NewNop())
	shared.beforeStore = func() {
		f.write(t, teacher, amina.ID, f.midterm.ID, "Physics", 85)
	}

	built, err := results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 60.0, built.Standings[0].Cell(built.Subjects, "Physics").Marks, "built from the marks read before the write")

	refetched, err := results.Matrix(ctx, f.midterm.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 85.0, refetched.Standings[0].Cell(refetched.Subjects, "Physics").Marks)
}
