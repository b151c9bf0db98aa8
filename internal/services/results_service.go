package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/metrics"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
	"go.uber.org/zap"
)

var ErrExamNotFound = errors.New("exam not found")

// Data sources read to build a results matrix
const (
	SourceStudents   = "students"
	SourceOfferings  = "subject_offerings"
	SourceMarks      = "marks"
	SourceBoundaries = "boundaries"
)

// FetchError is a failed read of one data source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FailedSources lists the sources named by every FetchError in err.
func FailedSources(err error) []string {
	var out []string
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if fe, ok := err.(*FetchError); ok {
			out = append(out, fe.Source)
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		walk(errors.Unwrap(err))
	}
	walk(err)
	return out
}

type ResultsService struct {
	repo   repository.Repository
	cache  cache.Cache
	ttl    time.Duration
	policy grading.SevenSubjectPolicy
	log    *zap.Logger
}

func NewResultsService(repo repository.Repository, c cache.Cache, ttl time.Duration, policy grading.SevenSubjectPolicy, log *zap.Logger) *ResultsService {
	return &ResultsService{repo: repo, cache: c, ttl: ttl, policy: policy, log: log}
}

func (s *ResultsService) ListExams(ctx context.Context, className string) ([]models.Exam, error) {
	return s.repo.ListExams(ctx, className)
}

// Matrix returns the results matrix of examID as seen from className. An
// empty className means the exam's own class.
func (s *ResultsService) Matrix(ctx context.Context, examID uuid.UUID, className string) (*grading.Matrix, error) {
	exam, err := s.repo.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if className == "" {
		className = exam.ClassName
	}

	key := cache.MatrixKey(examID.String())
	var cached grading.Matrix
	hit, err := s.cache.Get(ctx, key, className, &cached)
	if err != nil {
		s.log.Warn("matrix cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		metrics.MatrixRequests.WithLabelValues(metrics.CacheHit).Inc()
		return &cached, nil
	}
	metrics.MatrixRequests.WithLabelValues(metrics.CacheMiss).Inc()

	// A write landing while the matrix is built moves the generation and the
	// stale result is not stored
	gen, genErr := s.cache.Generation(ctx, key)
	if genErr != nil {
		s.log.Warn("matrix cache generation read failed", zap.String("key", key), zap.Error(genErr))
	}

	start := time.Now()
	m, err := s.build(ctx, exam, className)
	if err != nil {
		return nil, err
	}
	metrics.MatrixBuildDuration.Observe(time.Since(start).Seconds())

	if genErr == nil {
		stored, err := s.cache.SetIfGeneration(ctx, key, className, gen, m, s.ttl)
		if err != nil {
			s.log.Warn("matrix cache write failed", zap.String("key", key), zap.Error(err))
		} else if !stored {
			s.log.Debug("matrix invalidated during build, not cached", zap.String("key", key))
		}
	}
	return m, nil
}

type matrixSources struct {
	roster     []models.Student
	offerings  []models.SubjectOffering
	current    []models.Mark
	previous   []models.Mark
	boundaries []models.GradeBoundary
}

// fetch reads the four sources concurrently and reports every failure.
func (s *ResultsService) fetch(ctx context.Context, exam *models.Exam, className string) (*matrixSources, error) {
	var (
		src  matrixSources
		wg   sync.WaitGroup
		errs [4]error
	)
	historical := exam.ClassName != className

	wg.Add(4)
	go func() {
		defer wg.Done()
		var err error
		if historical {
			src.roster, err = s.repo.StudentsWithMarks(ctx, className, exam.ID)
		} else {
			src.roster, err = s.repo.StudentsInClass(ctx, className)
		}
		if err != nil {
			errs[0] = &FetchError{Source: SourceStudents, Err: err}
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if src.offerings, err = s.repo.Offerings(ctx, className); err != nil {
			errs[1] = &FetchError{Source: SourceOfferings, Err: err}
		}
	}()
	go func() {
		defer wg.Done()
		current, previous, err := s.fetchMarks(ctx, exam)
		if err != nil {
			errs[2] = &FetchError{Source: SourceMarks, Err: err}
			return
		}
		src.current, src.previous = current, previous
	}()
	go func() {
		defer wg.Done()
		var err error
		if src.boundaries, err = s.repo.Boundaries(ctx, className); err != nil {
			errs[3] = &FetchError{Source: SourceBoundaries, Err: err}
		}
	}()
	wg.Wait()

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *ResultsService) fetchMarks(ctx context.Context, exam *models.Exam) (current, previous []models.Mark, err error) {
	prev, err := s.repo.PreviousExam(ctx, exam)
	if err != nil {
		return nil, nil, err
	}
	ids := []uuid.UUID{exam.ID}
	if prev != nil {
		ids = append(ids, prev.ID)
	}
	marks, err := s.repo.MarksForExams(ctx, ids...)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range marks {
		if m.ExamID == exam.ID {
			current = append(current, m)
		} else {
			previous = append(previous, m)
		}
	}
	return current, previous, nil
}

func (s *ResultsService) build(ctx context.Context, exam *models.Exam, className string) (*grading.Matrix, error) {
	src, err := s.fetch(ctx, exam, className)
	if err != nil {
		s.log.Error("matrix fetch failed",
			zap.String("exam_id", exam.ID.String()),
			zap.String("class_name", className),
			zap.Strings("sources", FailedSources(err)),
			zap.Error(err))
		return nil, err
	}

	bounds := toBoundaries(src.boundaries)
	seven := s.policy.UsesSevenSubjects(className)
	offerings := toOfferings(src.offerings)
	if seven {
		for _, o := range offerings {
			if grading.ClassifySubject(o.Title, o.Category) == grading.GroupOther {
				s.log.Warn("subject not classified for 7-subject reduction; always counted",
					zap.String("class_name", className), zap.String("subject", o.Title))
			}
		}
	}

	return grading.BuildMatrix(grading.MatrixInput{
		ClassName:     className,
		Roster:        toRoster(src.roster),
		Offerings:     offerings,
		Current:       toEntries(src.current),
		Previous:      toEntries(src.previous),
		Resolver:      grading.NewResolver(className, bounds),
		PointBands:    grading.PointBandsFromBoundaries(className, bounds),
		SevenSubjects: seven,
	}), nil
}

func toRoster(students []models.Student) []grading.Student {
	out := make([]grading.Student, 0, len(students))
	for _, st := range students {
		out = append(out, grading.Student{ID: st.ID, FullName: st.FullName, AdmissionNumber: st.AdmissionNumber})
	}
	return out
}

func toOfferings(offerings []models.SubjectOffering) []grading.Offering {
	out := make([]grading.Offering, 0, len(offerings))
	for _, o := range offerings {
		if o.Subject == nil {
			continue
		}
		out = append(out, grading.Offering{
			SubjectID:  o.SubjectID,
			Title:      o.Subject.Title,
			SubSubject: o.SubSubject,
			Category:   o.Subject.Category,
		})
	}
	return out
}

func toEntries(marks []models.Mark) []grading.MarkEntry {
	out := make([]grading.MarkEntry, 0, len(marks))
	for _, m := range marks {
		out = append(out, grading.MarkEntry{ID: m.ID, StudentID: m.StudentID, Label: m.SubjectLabel, Marks: m.Marks})
	}
	return out
}

func toBoundaries(rows []models.GradeBoundary) []grading.Boundary {
	out := make([]grading.Boundary, 0, len(rows))
	for _, b := range rows {
		gb := grading.Boundary{
			ClassName:  b.ClassName,
			Scope:      b.BoundaryType,
			Purpose:    b.BoundaryFor,
			SubSubject: b.SubSubject,
			MinMarks:   b.MinMarks,
			MaxMarks:   b.MaxMarks,
			MinPoints:  b.MinPoints,
			MaxPoints:  b.MaxPoints,
			Grade:      b.Grade,
			Points:     b.Points,
		}
		if gb.Purpose == "" {
			gb.Purpose = grading.PurposeMarks
		}
		if b.SubjectID != nil {
			gb.SubjectID = *b.SubjectID
		}
		out = append(out, gb)
	}
	return out
}
