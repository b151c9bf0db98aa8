package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrInvalidBoundary  = errors.New("invalid grade boundary")
	ErrBoundaryNotFound = errors.New("grade boundary not found")
	ErrBoundariesExist  = errors.New("class already has grade boundaries")
)

const resourceBoundary = "grade_boundary"

type BoundaryInput struct {
	ClassName    string     `json:"class_name" binding:"required"`
	BoundaryType string     `json:"boundary_type" binding:"required"`
	BoundaryFor  string     `json:"boundary_for"`
	SubjectID    *uuid.UUID `json:"subject_id"`
	SubSubject   string     `json:"sub_subject"`
	MinMarks     float64    `json:"min_marks"`
	MaxMarks     float64    `json:"max_marks"`
	MinPoints    int        `json:"min_points"`
	MaxPoints    int        `json:"max_points"`
	Grade        string     `json:"grade" binding:"required"`
	Points       int        `json:"points"`
}

// DefaultMarkScale is the 8-4-4 mark scale seeded as overall boundaries.
// Bands are contiguous to two decimals so fractional marks and means always
// land in a band.
var DefaultMarkScale = []BoundaryInput{
	{Grade: "A", MinMarks: 80, MaxMarks: 100, Points: 12},
	{Grade: "A-", MinMarks: 75, MaxMarks: 79.99, Points: 11},
	{Grade: "B+", MinMarks: 70, MaxMarks: 74.99, Points: 10},
	{Grade: "B", MinMarks: 65, MaxMarks: 69.99, Points: 9},
	{Grade: "B-", MinMarks: 60, MaxMarks: 64.99, Points: 8},
	{Grade: "C+", MinMarks: 55, MaxMarks: 59.99, Points: 7},
	{Grade: "C", MinMarks: 50, MaxMarks: 54.99, Points: 6},
	{Grade: "C-", MinMarks: 45, MaxMarks: 49.99, Points: 5},
	{Grade: "D+", MinMarks: 40, MaxMarks: 44.99, Points: 4},
	{Grade: "D", MinMarks: 35, MaxMarks: 39.99, Points: 3},
	{Grade: "D-", MinMarks: 30, MaxMarks: 34.99, Points: 2},
	{Grade: "E", MinMarks: 0, MaxMarks: 29.99, Points: 1},
}

type BoundaryService struct {
	repo  repository.Repository
	cache cache.Cache
	audit *AuditService
	log   *zap.Logger
}

func NewBoundaryService(repo repository.Repository, c cache.Cache, audit *AuditService, log *zap.Logger) *BoundaryService {
	return &BoundaryService{repo: repo, cache: c, audit: audit, log: log}
}

func (s *BoundaryService) List(ctx context.Context, className string) ([]models.GradeBoundary, error) {
	return s.repo.Boundaries(ctx, className)
}

func (s *BoundaryService) Create(ctx context.Context, ac auth.Context, in BoundaryInput) (*models.GradeBoundary, error) {
	if err := ac.Require(auth.PermManageBoundaries); err != nil {
		return nil, err
	}
	b := &models.GradeBoundary{}
	if err := apply(b, in); err != nil {
		return nil, err
	}
	if err := s.repo.CreateBoundary(ctx, b); err != nil {
		return nil, err
	}
	s.changed(ctx, ac, AuditActionCreate, b.ID, nil, boundarySnapshot(b))
	return b, nil
}

func (s *BoundaryService) Update(ctx context.Context, ac auth.Context, id uuid.UUID, in BoundaryInput) (*models.GradeBoundary, error) {
	if err := ac.Require(auth.PermManageBoundaries); err != nil {
		return nil, err
	}
	b, err := s.repo.GetBoundary(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBoundaryNotFound
		}
		return nil, err
	}
	before := boundarySnapshot(b)
	if err := apply(b, in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBoundary(ctx, b); err != nil {
		return nil, err
	}
	s.changed(ctx, ac, AuditActionUpdate, b.ID, before, boundarySnapshot(b))
	return b, nil
}

func (s *BoundaryService) Delete(ctx context.Context, ac auth.Context, id uuid.UUID) error {
	if err := ac.Require(auth.PermManageBoundaries); err != nil {
		return err
	}
	b, err := s.repo.GetBoundary(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBoundaryNotFound
		}
		return err
	}
	if err := s.repo.DeleteBoundary(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, ac, AuditActionDelete, id, boundarySnapshot(b), nil)
	return nil
}

// SeedDefaults writes DefaultMarkScale as the overall boundaries of a class
// that has none.
func (s *BoundaryService) SeedDefaults(ctx context.Context, ac auth.Context, className string) (int, error) {
	if err := ac.Require(auth.PermManageBoundaries); err != nil {
		return 0, err
	}
	existing, err := s.repo.Boundaries(ctx, className)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, ErrBoundariesExist
	}
	for _, in := range DefaultMarkScale {
		in.ClassName = className
		in.BoundaryType = models.BoundaryTypeOverall
		in.BoundaryFor = models.BoundaryForMarks
		if _, err := s.Create(ctx, ac, in); err != nil {
			return 0, err
		}
	}
	return len(DefaultMarkScale), nil
}

func apply(b *models.GradeBoundary, in BoundaryInput) error {
	if in.BoundaryFor == "" {
		in.BoundaryFor = models.BoundaryForMarks
	}
	if strings.TrimSpace(in.ClassName) == "" || strings.TrimSpace(in.Grade) == "" {
		return fmt.Errorf("%w: class_name and grade are required", ErrInvalidBoundary)
	}
	switch in.BoundaryType {
	case models.BoundaryTypeOverall:
		in.SubjectID = nil
		in.SubSubject = ""
	case models.BoundaryTypeSubject:
		if in.SubjectID == nil || *in.SubjectID == uuid.Nil {
			return fmt.Errorf("%w: subject boundaries need a subject_id", ErrInvalidBoundary)
		}
		if in.BoundaryFor != models.BoundaryForMarks {
			return fmt.Errorf("%w: subject boundaries apply to marks only", ErrInvalidBoundary)
		}
	default:
		return fmt.Errorf("%w: boundary_type %q", ErrInvalidBoundary, in.BoundaryType)
	}
	switch in.BoundaryFor {
	case models.BoundaryForMarks:
		if in.MinMarks < 0 || in.MaxMarks > 100 || in.MinMarks > in.MaxMarks {
			return fmt.Errorf("%w: mark range %.2f-%.2f", ErrInvalidBoundary, in.MinMarks, in.MaxMarks)
		}
	case models.BoundaryForPoints:
		if in.MinPoints < 0 || in.MinPoints > in.MaxPoints {
			return fmt.Errorf("%w: point range %d-%d", ErrInvalidBoundary, in.MinPoints, in.MaxPoints)
		}
	default:
		return fmt.Errorf("%w: boundary_for %q", ErrInvalidBoundary, in.BoundaryFor)
	}

	b.ClassName = strings.TrimSpace(in.ClassName)
	b.BoundaryType = in.BoundaryType
	b.BoundaryFor = in.BoundaryFor
	b.SubjectID = in.SubjectID
	b.SubSubject = in.SubSubject
	b.MinMarks = in.MinMarks
	b.MaxMarks = in.MaxMarks
	b.MinPoints = in.MinPoints
	b.MaxPoints = in.MaxPoints
	b.Grade = strings.TrimSpace(in.Grade)
	b.Points = in.Points
	return nil
}

// changed drops every cached matrix and records the change.
func (s *BoundaryService) changed(ctx context.Context, ac auth.Context, action string, id uuid.UUID, before, after models.JSONB) {
	if err := s.cache.InvalidatePrefix(ctx, cache.MatrixPrefix()); err != nil {
		s.log.Warn("matrix cache invalidation failed", zap.Error(err))
	}
	if err := s.audit.Log(ctx, ac.EffectiveUserID(), action, resourceBoundary, id, before, after, ""); err != nil {
		s.log.Warn("audit log failed", zap.String("boundary_id", id.String()), zap.Error(err))
	}
}
