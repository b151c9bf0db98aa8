package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
)

const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

type AuditService struct {
	store repository.AuditStore
}

func NewAuditService(store repository.AuditStore) *AuditService {
	return &AuditService{store: store}
}

func (s *AuditService) Log(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID uuid.UUID, before, after models.JSONB, ip string) error {
	log := &models.AuditLog{
		ActorUserID:  userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       before,
		After:        after,
		IP:           ip,
	}
	return s.store.CreateAuditLog(ctx, log)
}

func (s *AuditService) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.RecentAuditLogs(ctx, limit)
}

func markSnapshot(m *models.Mark) models.JSONB {
	if m == nil {
		return nil
	}
	return models.JSONB{
		"student_id": m.StudentID.String(),
		"exam_id":    m.ExamID.String(),
		"subject":    m.SubjectLabel,
		"marks":      m.Marks,
		"grade":      m.Grade,
		"points":     m.Points,
	}
}

func boundarySnapshot(b *models.GradeBoundary) models.JSONB {
	if b == nil {
		return nil
	}
	return models.JSONB{
		"class_name":    b.ClassName,
		"boundary_type": b.BoundaryType,
		"boundary_for":  b.BoundaryFor,
		"min_marks":     b.MinMarks,
		"max_marks":     b.MaxMarks,
		"min_points":    b.MinPoints,
		"max_points":    b.MaxPoints,
		"grade":         b.Grade,
		"points":        b.Points,
	}
}
