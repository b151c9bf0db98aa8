// Package repository defines the storage contract used by the services.
// gormrepo backs it with a SQL database; inmem keeps everything in memory
// for tests and the command-line tools.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/models"
)

var ErrNotFound = errors.New("record not found")

type ExamStore interface {
	GetExam(ctx context.Context, id uuid.UUID) (*models.Exam, error)
	// ListExams returns a class's exams, newest start date first.
	ListExams(ctx context.Context, className string) ([]models.Exam, error)
	// PreviousExam is the latest exam of the same class that started strictly
	// before exam. It returns (nil, nil) when there is none.
	PreviousExam(ctx context.Context, exam *models.Exam) (*models.Exam, error)
}

type RosterStore interface {
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	// StudentsInClass returns the class's current students ordered by name.
	StudentsInClass(ctx context.Context, className string) ([]models.Student, error)
	// StudentsWithMarks returns students currently in className that have at
	// least one mark for examID, ordered by name.
	StudentsWithMarks(ctx context.Context, className string, examID uuid.UUID) ([]models.Student, error)
}

type SubjectStore interface {
	GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	// Offerings returns the class's subject offerings with Subject loaded,
	// ordered by subject title then sub-subject.
	Offerings(ctx context.Context, className string) ([]models.SubjectOffering, error)
}

type MarkStore interface {
	GetMark(ctx context.Context, id uuid.UUID) (*models.Mark, error)
	FindMark(ctx context.Context, studentID, examID uuid.UUID, label string) (*models.Mark, error)
	MarksForExams(ctx context.Context, examIDs ...uuid.UUID) ([]models.Mark, error)
	UpdateMark(ctx context.Context, mark *models.Mark) error
	// UpsertMark inserts mark or, when (student, exam, label) already
	// exists, overwrites the stored score fields.
	UpsertMark(ctx context.Context, mark *models.Mark) error
	DeleteMark(ctx context.Context, id uuid.UUID) error
	// DeleteOrphanMarks removes marks whose student or exam no longer exists.
	DeleteOrphanMarks(ctx context.Context) (int64, error)
}

type BoundaryStore interface {
	// Boundaries returns the class's boundaries in creation order.
	Boundaries(ctx context.Context, className string) ([]models.GradeBoundary, error)
	GetBoundary(ctx context.Context, id uuid.UUID) (*models.GradeBoundary, error)
	CreateBoundary(ctx context.Context, b *models.GradeBoundary) error
	UpdateBoundary(ctx context.Context, b *models.GradeBoundary) error
	DeleteBoundary(ctx context.Context, id uuid.UUID) error
}

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	CountUsersByRole(ctx context.Context, role string) (int64, error)
	CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error
	RefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	RecentAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error)
}

type Repository interface {
	ExamStore
	RosterStore
	SubjectStore
	MarkStore
	BoundaryStore
	UserStore
	AuditStore
}
