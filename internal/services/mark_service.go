package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/metrics"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrMarkNotFound      = errors.New("mark not found")
	ErrStudentNotFound   = errors.New("student not found")
	ErrSubjectNotOffered = errors.New("subject not offered in class")
)

const resourceMark = "mark"

type WriteMarkInput struct {
	StudentID  uuid.UUID
	ExamID     uuid.UUID
	SubjectID  uuid.UUID
	SubSubject string
	// Class whose offerings and boundaries apply. Empty means the exam's class.
	ClassName string
	Marks     float64
	Remarks   string
	IP        string
}

// MarkService is the single write path for marks. Every successful write
// or delete drops the cached matrices of the affected exam.
type MarkService struct {
	repo  repository.Repository
	cache cache.Cache
	audit *AuditService
	log   *zap.Logger
}

func NewMarkService(repo repository.Repository, c cache.Cache, audit *AuditService, log *zap.Logger) *MarkService {
	return &MarkService{repo: repo, cache: c, audit: audit, log: log}
}

// WriteMark grades and stores one mark, updating the existing row for
// (student, exam, subject label) when there is one. created reports
// whether a new row was inserted.
func (s *MarkService) WriteMark(ctx context.Context, ac auth.Context, in WriteMarkInput) (*models.Mark, bool, error) {
	if err := ac.Require(auth.PermWriteMarks); err != nil {
		return nil, false, err
	}

	exam, err := s.repo.GetExam(ctx, in.ExamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, ErrExamNotFound
		}
		return nil, false, err
	}
	if _, err := s.repo.GetStudent(ctx, in.StudentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, ErrStudentNotFound
		}
		return nil, false, err
	}

	className := in.ClassName
	if className == "" {
		className = exam.ClassName
	}

	offering, err := s.findOffering(ctx, className, in.SubjectID, in.SubSubject)
	if err != nil {
		return nil, false, err
	}

	rows, err := s.repo.Boundaries(ctx, className)
	if err != nil {
		return nil, false, err
	}
	resolver := grading.NewResolver(className, toBoundaries(rows))
	grade := resolver.Resolve(in.Marks, &grading.SubjectRef{ID: offering.SubjectID, SubSubject: offering.SubSubject})

	label := offering.Label()
	teacher := ac.EffectiveUserID()

	var before *models.Mark
	created := false
	mark, err := s.repo.FindMark(ctx, in.StudentID, in.ExamID, label)
	switch {
	case err == nil:
		prev := *mark
		before = &prev
		mark.Marks = in.Marks
		mark.Grade = grade.Letter
		mark.Points = grade.Points
		mark.Remarks = in.Remarks
		if mark.TeacherID == nil {
			mark.TeacherID = &teacher
		}
		if err := s.repo.UpdateMark(ctx, mark); err != nil {
			return nil, false, err
		}
	case errors.Is(err, repository.ErrNotFound):
		mark = &models.Mark{
			StudentID:    in.StudentID,
			ExamID:       in.ExamID,
			SubjectLabel: label,
			SubjectID:    offering.SubjectID,
			SubSubject:   offering.SubSubject,
			Marks:        in.Marks,
			Grade:        grade.Letter,
			Points:       grade.Points,
			Remarks:      in.Remarks,
			Term:         exam.Term,
			Year:         exam.Year,
			TeacherID:    &teacher,
		}
		if err := s.repo.UpsertMark(ctx, mark); err != nil {
			return nil, false, err
		}
		created = true
	default:
		return nil, false, err
	}

	action := AuditActionUpdate
	if created {
		action = AuditActionCreate
	}
	s.afterMutation(ctx, ac, action, mark.ID, exam, markSnapshot(before), markSnapshot(mark), in.IP)
	metrics.MarkMutations.WithLabelValues(metrics.OpWrite).Inc()

	s.log.Info("mark written",
		zap.String("mark_id", mark.ID.String()),
		zap.String("exam_id", exam.ID.String()),
		zap.String("subject", label),
		zap.Bool("created", created),
		zap.String("actor", ac.UserID.String()))
	return mark, created, nil
}

// DeleteMark permanently removes a mark.
func (s *MarkService) DeleteMark(ctx context.Context, ac auth.Context, id uuid.UUID, ip string) error {
	if err := ac.Require(auth.PermDeleteMarks); err != nil {
		return err
	}

	mark, err := s.repo.GetMark(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMarkNotFound
		}
		return err
	}
	if err := s.repo.DeleteMark(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMarkNotFound
		}
		return err
	}

	exam, err := s.repo.GetExam(ctx, mark.ExamID)
	if err != nil {
		// The mark outlived its exam; only its own matrix key is known
		exam = &models.Exam{BaseModel: models.BaseModel{ID: mark.ExamID}}
	}
	s.afterMutation(ctx, ac, AuditActionDelete, mark.ID, exam, markSnapshot(mark), nil, ip)
	metrics.MarkMutations.WithLabelValues(metrics.OpDelete).Inc()
	return nil
}

func (s *MarkService) findOffering(ctx context.Context, className string, subjectID uuid.UUID, subSubject string) (*models.SubjectOffering, error) {
	offerings, err := s.repo.Offerings(ctx, className)
	if err != nil {
		return nil, err
	}
	for i := range offerings {
		o := &offerings[i]
		if o.SubjectID == subjectID && o.SubSubject == subSubject && o.Subject != nil {
			return o, nil
		}
	}
	return nil, ErrSubjectNotOffered
}

// afterMutation runs once the store has acknowledged a change. Its failures
// are logged and never undo the write.
func (s *MarkService) afterMutation(ctx context.Context, ac auth.Context, action string, markID uuid.UUID, exam *models.Exam, before, after models.JSONB, ip string) {
	s.invalidate(ctx, exam)
	if err := s.audit.Log(ctx, ac.EffectiveUserID(), action, resourceMark, markID, before, after, ip); err != nil {
		s.log.Warn("audit log failed", zap.String("mark_id", markID.String()), zap.Error(err))
	}
}

// invalidate drops the cached matrices that read the exam's marks: its own
// and those of the class's next exams, which use it as their previous exam.
func (s *MarkService) invalidate(ctx context.Context, exam *models.Exam) {
	keys := []string{cache.MatrixKey(exam.ID.String())}
	if exam.ClassName != "" {
		next, err := s.nextExams(ctx, exam)
		if err != nil {
			s.log.Warn("next exam lookup failed, dropping every matrix", zap.String("exam_id", exam.ID.String()), zap.Error(err))
			if err := s.cache.InvalidatePrefix(ctx, cache.MatrixPrefix()); err != nil {
				s.log.Warn("matrix cache invalidation failed", zap.Error(err))
			}
			return
		}
		for _, e := range next {
			keys = append(keys, cache.MatrixKey(e.ID.String()))
		}
	}
	for _, key := range keys {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log.Warn("matrix cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// nextExams returns the class's exams starting on the earliest date after
// exam. Their previous exam is exam.
func (s *MarkService) nextExams(ctx context.Context, exam *models.Exam) ([]models.Exam, error) {
	exams, err := s.repo.ListExams(ctx, exam.ClassName)
	if err != nil {
		return nil, err
	}
	var next []models.Exam
	for _, e := range exams {
		if !e.StartDate.After(exam.StartDate) {
			continue
		}
		switch {
		case len(next) == 0 || e.StartDate.Before(next[0].StartDate):
			next = []models.Exam{e}
		case e.StartDate.Equal(next[0].StartDate):
			next = append(next, e)
		}
	}
	return next, nil
}
