// Package inmem is a map-backed repository.Repository.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
)

// Operation names accepted by FailOn
const (
	OpExams      = "exams"
	OpStudents   = "students"
	OpOfferings  = "offerings"
	OpMarks      = "marks"
	OpBoundaries = "boundaries"
	OpWrite      = "write"
)

type Repository struct {
	mutex sync.RWMutex

	users      map[uuid.UUID]*models.User
	tokens     map[string]*models.RefreshToken
	students   map[uuid.UUID]*models.Student
	subjects   map[uuid.UUID]*models.Subject
	offerings  []*models.SubjectOffering
	exams      map[uuid.UUID]*models.Exam
	marks      map[uuid.UUID]*models.Mark
	boundaries []*models.GradeBoundary
	audit      []models.AuditLog

	failures map[string]error
}

var _ repository.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		users:    make(map[uuid.UUID]*models.User),
		tokens:   make(map[string]*models.RefreshToken),
		students: make(map[uuid.UUID]*models.Student),
		subjects: make(map[uuid.UUID]*models.Subject),
		exams:    make(map[uuid.UUID]*models.Exam),
		marks:    make(map[uuid.UUID]*models.Mark),
		failures: make(map[string]error),
	}
}

// FailOn makes every call in the op family return err. A nil err clears it.
func (r *Repository) FailOn(op string, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

func (r *Repository) failure(op string) error {
	return r.failures[op]
}

func stamp(b *models.BaseModel) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Seeding helpers

func (r *Repository) AddStudent(s models.Student) models.Student {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	stamp(&s.BaseModel)
	r.students[s.ID] = &s
	return s
}

func (r *Repository) AddSubject(s models.Subject) models.Subject {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	stamp(&s.BaseModel)
	r.subjects[s.ID] = &s
	return s
}

func (r *Repository) AddOffering(o models.SubjectOffering) models.SubjectOffering {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	stamp(&o.BaseModel)
	o.Subject = nil
	r.offerings = append(r.offerings, &o)
	return o
}

func (r *Repository) AddExam(e models.Exam) models.Exam {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	stamp(&e.BaseModel)
	r.exams[e.ID] = &e
	return e
}

func (r *Repository) RemoveStudent(id uuid.UUID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.students, id)
}

func (r *Repository) RemoveExam(id uuid.UUID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.exams, id)
}

// MarkCount returns the number of stored marks
func (r *Repository) MarkCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.marks)
}

// AuditLogs returns a copy of every audit entry in insertion order
func (r *Repository) AuditLogs() []models.AuditLog {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]models.AuditLog(nil), r.audit...)
}

// Exams

func (r *Repository) GetExam(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpExams); err != nil {
		return nil, err
	}
	if e, ok := r.exams[id]; ok {
		exam := *e
		return &exam, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) ListExams(ctx context.Context, className string) ([]models.Exam, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpExams); err != nil {
		return nil, err
	}
	var out []models.Exam
	for _, e := range r.exams {
		if e.ClassName == className {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (r *Repository) PreviousExam(ctx context.Context, exam *models.Exam) (*models.Exam, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpExams); err != nil {
		return nil, err
	}
	var prev *models.Exam
	for _, e := range r.exams {
		if e.ClassName != exam.ClassName || !e.StartDate.Before(exam.StartDate) {
			continue
		}
		if prev == nil || e.StartDate.After(prev.StartDate) {
			prev = e
		}
	}
	if prev == nil {
		return nil, nil
	}
	out := *prev
	return &out, nil
}

// Roster

func (r *Repository) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if s, ok := r.students[id]; ok {
		student := *s
		return &student, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) StudentsInClass(ctx context.Context, className string) ([]models.Student, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpStudents); err != nil {
		return nil, err
	}
	return r.roster(func(s *models.Student) bool { return s.ClassName == className }), nil
}

func (r *Repository) StudentsWithMarks(ctx context.Context, className string, examID uuid.UUID) ([]models.Student, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpStudents); err != nil {
		return nil, err
	}
	marked := make(map[uuid.UUID]bool)
	for _, m := range r.marks {
		if m.ExamID == examID {
			marked[m.StudentID] = true
		}
	}
	return r.roster(func(s *models.Student) bool { return s.ClassName == className && marked[s.ID] }), nil
}

func (r *Repository) roster(keep func(*models.Student) bool) []models.Student {
	var out []models.Student
	for _, s := range r.students {
		if keep(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].AdmissionNumber < out[j].AdmissionNumber
	})
	return out
}

// Subjects

func (r *Repository) GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if s, ok := r.subjects[id]; ok {
		subject := *s
		return &subject, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) Offerings(ctx context.Context, className string) ([]models.SubjectOffering, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpOfferings); err != nil {
		return nil, err
	}
	var out []models.SubjectOffering
	for _, o := range r.offerings {
		if o.ClassName != className {
			continue
		}
		off := *o
		if s, ok := r.subjects[o.SubjectID]; ok {
			subject := *s
			off.Subject = &subject
		}
		out = append(out, off)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label()) < strings.ToLower(out[j].Label())
	})
	return out, nil
}

// Marks

func (r *Repository) GetMark(ctx context.Context, id uuid.UUID) (*models.Mark, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if m, ok := r.marks[id]; ok {
		mark := *m
		return &mark, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) FindMark(ctx context.Context, studentID, examID uuid.UUID, label string) (*models.Mark, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if m := r.findMark(studentID, examID, label); m != nil {
		mark := *m
		return &mark, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) findMark(studentID, examID uuid.UUID, label string) *models.Mark {
	for _, m := range r.marks {
		if m.StudentID == studentID && m.ExamID == examID && m.SubjectLabel == label {
			return m
		}
	}
	return nil
}

func (r *Repository) MarksForExams(ctx context.Context, examIDs ...uuid.UUID) ([]models.Mark, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpMarks); err != nil {
		return nil, err
	}
	want := make(map[uuid.UUID]bool, len(examIDs))
	for _, id := range examIDs {
		want[id] = true
	}
	var out []models.Mark
	for _, m := range r.marks {
		if want[m.ExamID] {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) UpdateMark(ctx context.Context, mark *models.Mark) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.failure(OpWrite); err != nil {
		return err
	}
	if _, ok := r.marks[mark.ID]; !ok {
		return repository.ErrNotFound
	}
	stamp(&mark.BaseModel)
	stored := *mark
	r.marks[mark.ID] = &stored
	return nil
}

func (r *Repository) UpsertMark(ctx context.Context, mark *models.Mark) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.failure(OpWrite); err != nil {
		return err
	}
	if existing := r.findMark(mark.StudentID, mark.ExamID, mark.SubjectLabel); existing != nil {
		existing.Marks = mark.Marks
		existing.Grade = mark.Grade
		existing.Points = mark.Points
		existing.Remarks = mark.Remarks
		if existing.TeacherID == nil {
			existing.TeacherID = mark.TeacherID
		}
		existing.UpdatedAt = time.Now()
		*mark = *existing
		return nil
	}
	stamp(&mark.BaseModel)
	stored := *mark
	r.marks[mark.ID] = &stored
	return nil
}

func (r *Repository) DeleteMark(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.failure(OpWrite); err != nil {
		return err
	}
	if _, ok := r.marks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.marks, id)
	return nil
}

func (r *Repository) DeleteOrphanMarks(ctx context.Context) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var n int64
	for id, m := range r.marks {
		_, student := r.students[m.StudentID]
		_, exam := r.exams[m.ExamID]
		if !student || !exam {
			delete(r.marks, id)
			n++
		}
	}
	return n, nil
}

// Boundaries

func (r *Repository) Boundaries(ctx context.Context, className string) ([]models.GradeBoundary, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.failure(OpBoundaries); err != nil {
		return nil, err
	}
	var out []models.GradeBoundary
	for _, b := range r.boundaries {
		if b.ClassName == className {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *Repository) GetBoundary(ctx context.Context, id uuid.UUID) (*models.GradeBoundary, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, b := range r.boundaries {
		if b.ID == id {
			out := *b
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) CreateBoundary(ctx context.Context, b *models.GradeBoundary) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.failure(OpWrite); err != nil {
		return err
	}
	stamp(&b.BaseModel)
	stored := *b
	r.boundaries = append(r.boundaries, &stored)
	return nil
}

func (r *Repository) UpdateBoundary(ctx context.Context, b *models.GradeBoundary) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.failure(OpWrite); err != nil {
		return err
	}
	for i, existing := range r.boundaries {
		if existing.ID == b.ID {
			stamp(&b.BaseModel)
			stored := *b
			r.boundaries[i] = &stored
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *Repository) DeleteBoundary(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.failure(OpWrite); err != nil {
		return err
	}
	for i, b := range r.boundaries {
		if b.ID == id {
			r.boundaries = append(r.boundaries[:i], r.boundaries[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// Users

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if u, ok := r.users[id]; ok {
		user := *u
		return &user, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			user := *u
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	stamp(&u.BaseModel)
	stored := *u
	r.users[u.ID] = &stored
	return nil
}

func (r *Repository) CountUsersByRole(ctx context.Context, role string) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	var n int64
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	rt.CreatedAt = time.Now()
	stored := *rt
	r.tokens[rt.Token] = &stored
	return nil
}

func (r *Repository) RefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if rt, ok := r.tokens[token]; ok {
		out := *rt
		return &out, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if rt, ok := r.tokens[token]; ok {
		rt.Revoked = true
	}
	return nil
}

// Audit

func (r *Repository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.Timestamp = time.Now()
	r.audit = append(r.audit, *entry)
	return nil
}

func (r *Repository) RecentAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	var out []models.AuditLog
	for i := len(r.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.audit[i])
	}
	return out, nil
}
