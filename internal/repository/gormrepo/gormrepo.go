package gormrepo

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

var _ repository.Repository = (*Repository)(nil)

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	return err
}

func (r *Repository) GetExam(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).First(&exam, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &exam, nil
}

func (r *Repository) ListExams(ctx context.Context, className string) ([]models.Exam, error) {
	var exams []models.Exam
	err := r.db.WithContext(ctx).
		Where("class_name = ?", className).
		Order("start_date DESC").
		Find(&exams).Error
	return exams, err
}

func (r *Repository) PreviousExam(ctx context.Context, exam *models.Exam) (*models.Exam, error) {
	var prev models.Exam
	err := r.db.WithContext(ctx).
		Where("class_name = ? AND start_date < ?", exam.ClassName, exam.StartDate).
		Order("start_date DESC").
		First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prev, nil
}

func (r *Repository) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &student, nil
}

func (r *Repository) StudentsInClass(ctx context.Context, className string) ([]models.Student, error) {
	var students []models.Student
	err := r.db.WithContext(ctx).
		Where("class_name = ?", className).
		Order("full_name ASC, admission_number ASC").
		Find(&students).Error
	return students, err
}

func (r *Repository) StudentsWithMarks(ctx context.Context, className string, examID uuid.UUID) ([]models.Student, error) {
	var students []models.Student
	marked := r.db.Model(&models.Mark{}).Select("student_id").Where("exam_id = ?", examID)
	err := r.db.WithContext(ctx).
		Where("class_name = ? AND id IN (?)", className, marked).
		Order("full_name ASC, admission_number ASC").
		Find(&students).Error
	return students, err
}

func (r *Repository) GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.WithContext(ctx).First(&subject, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &subject, nil
}

func (r *Repository) Offerings(ctx context.Context, className string) ([]models.SubjectOffering, error) {
	var offerings []models.SubjectOffering
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Where("class_name = ?", className).
		Find(&offerings).Error
	if err != nil {
		return nil, err
	}
	SortOfferings(offerings)
	return offerings, nil
}

// SortOfferings orders offerings by label, case-insensitively.
func SortOfferings(offerings []models.SubjectOffering) {
	sort.SliceStable(offerings, func(i, j int) bool {
		return strings.ToLower(offerings[i].Label()) < strings.ToLower(offerings[j].Label())
	})
}

func (r *Repository) GetMark(ctx context.Context, id uuid.UUID) (*models.Mark, error) {
	var mark models.Mark
	if err := r.db.WithContext(ctx).First(&mark, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &mark, nil
}

func (r *Repository) FindMark(ctx context.Context, studentID, examID uuid.UUID, label string) (*models.Mark, error) {
	var mark models.Mark
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND exam_id = ? AND subject_label = ?", studentID, examID, label).
		First(&mark).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &mark, nil
}

func (r *Repository) MarksForExams(ctx context.Context, examIDs ...uuid.UUID) ([]models.Mark, error) {
	if len(examIDs) == 0 {
		return nil, nil
	}
	var marks []models.Mark
	err := r.db.WithContext(ctx).Where("exam_id IN ?", examIDs).Find(&marks).Error
	return marks, err
}

func (r *Repository) UpdateMark(ctx context.Context, mark *models.Mark) error {
	return r.db.WithContext(ctx).Save(mark).Error
}

func (r *Repository) UpsertMark(ctx context.Context, mark *models.Mark) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "exam_id"}, {Name: "subject_label"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"marks", "grade", "points", "remarks", "updated_at",
		}),
	}).Create(mark).Error
	if err != nil {
		return err
	}
	// On conflict the stored row keeps its own id and recording teacher
	stored, err := r.FindMark(ctx, mark.StudentID, mark.ExamID, mark.SubjectLabel)
	if err != nil {
		return err
	}
	*mark = *stored
	return nil
}

func (r *Repository) DeleteMark(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Mark{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteOrphanMarks(ctx context.Context) (int64, error) {
	students := r.db.Model(&models.Student{}).Select("id")
	exams := r.db.Model(&models.Exam{}).Select("id")
	res := r.db.WithContext(ctx).
		Where("student_id NOT IN (?) OR exam_id NOT IN (?)", students, exams).
		Delete(&models.Mark{})
	return res.RowsAffected, res.Error
}

func (r *Repository) Boundaries(ctx context.Context, className string) ([]models.GradeBoundary, error) {
	var boundaries []models.GradeBoundary
	err := r.db.WithContext(ctx).
		Where("class_name = ?", className).
		Order("created_at ASC, id ASC").
		Find(&boundaries).Error
	return boundaries, err
}

func (r *Repository) GetBoundary(ctx context.Context, id uuid.UUID) (*models.GradeBoundary, error) {
	var b models.GradeBoundary
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *Repository) CreateBoundary(ctx context.Context, b *models.GradeBoundary) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *Repository) UpdateBoundary(ctx context.Context, b *models.GradeBoundary) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *Repository) DeleteBoundary(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.GradeBoundary{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repository) CountUsersByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

func (r *Repository) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	return r.db.WithContext(ctx).Create(rt).Error
}

func (r *Repository) RefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&rt).Error; err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", token).
		Update("revoked", true).Error
}

func (r *Repository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) RecentAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
