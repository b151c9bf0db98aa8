package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/grading"
	"gorm.io/gorm"
)

// JSONB custom type for JSON fields
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Base model with UUID. Rows are deleted permanently; there is no soft delete.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User represents portal staff and students that can sign in
type User struct {
	BaseModel
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	Role         string `gorm:"type:varchar(20);not null" json:"role"`
	FullName     string `gorm:"type:varchar(255);not null" json:"full_name"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
	Meta         JSONB  `gorm:"type:json" json:"meta"`
}

// Student represents a student and the class they are currently in
type Student struct {
	BaseModel
	FullName        string `gorm:"type:varchar(255);not null" json:"full_name"`
	AdmissionNumber string `gorm:"type:varchar(50);not null;uniqueIndex" json:"admission_number"`
	ClassName       string `gorm:"type:varchar(100);not null;index" json:"class"`
}

// Subject is a curriculum subject. Category optionally pins the subject
// group used by the 7-subject reduction.
type Subject struct {
	BaseModel
	Title    string `gorm:"type:varchar(255);not null;uniqueIndex" json:"title"`
	Code     string `gorm:"type:varchar(50)" json:"code"`
	Category string `gorm:"type:varchar(30)" json:"category,omitempty"`
}

// SubjectOffering declares that a subject (optionally a named sub-subject) is taught in a class
type SubjectOffering struct {
	BaseModel
	ClassName  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_offering_class_subject" json:"class_name"`
	SubjectID  uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_offering_class_subject" json:"subject_id"`
	SubSubject string    `gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_offering_class_subject" json:"sub_subject"`
	Subject    *Subject  `gorm:"foreignKey:SubjectID" json:"subject,omitempty"`
}

// SubjectLabel is grading.SubjectLabel, the key marks are stored under.
func SubjectLabel(title, subSubject string) string {
	return grading.SubjectLabel(title, subSubject)
}

// Label returns the offering's subject label. Subject must be preloaded.
func (o SubjectOffering) Label() string {
	if o.Subject == nil {
		return o.SubSubject
	}
	return SubjectLabel(o.Subject.Title, o.SubSubject)
}

// Exam is a sitting for one class in a term
type Exam struct {
	BaseModel
	ClassName string    `gorm:"type:varchar(100);not null;index:idx_exam_class_start" json:"class_name"`
	ExamName  string    `gorm:"type:varchar(255);not null" json:"exam_name"`
	Term      string    `gorm:"type:varchar(10);not null" json:"term"`
	Year      int       `gorm:"not null" json:"year"`
	StartDate time.Time `gorm:"type:date;index:idx_exam_class_start" json:"start_date"`
	EndDate   time.Time `gorm:"type:date" json:"end_date"`
	Status    string    `gorm:"type:varchar(20);default:'scheduled'" json:"status"`
	Timetable JSONB     `gorm:"type:json" json:"timetable"`
}

// Mark is a single recorded score for one student, one subject label, one exam.
// (student_id, exam_id, subject_label) is unique.
type Mark struct {
	BaseModel
	StudentID    uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex:idx_mark_natural_key" json:"student_id"`
	ExamID       uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex:idx_mark_natural_key;index" json:"exam_id"`
	SubjectLabel string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_mark_natural_key" json:"subject"`
	SubjectID    uuid.UUID  `gorm:"type:char(36);not null" json:"subject_id"`
	SubSubject   string     `gorm:"type:varchar(100)" json:"sub_subject"`
	Marks        float64    `gorm:"type:decimal(5,2);not null" json:"marks"`
	Grade        string     `gorm:"type:varchar(4)" json:"grade"`
	Points       int        `gorm:"type:smallint" json:"points"`
	Remarks      string     `gorm:"type:text" json:"remarks"`
	Term         string     `gorm:"type:varchar(10)" json:"term"`
	Year         int        `json:"year"`
	TeacherID    *uuid.UUID `gorm:"type:char(36);index" json:"teacher_id,omitempty"`
}

// GradeBoundary maps a mark range (boundary_for = marks) or a point range
// (boundary_for = points) to a grade for a class.
type GradeBoundary struct {
	BaseModel
	ClassName    string     `gorm:"type:varchar(100);not null;index" json:"class_name"`
	BoundaryType string     `gorm:"type:varchar(10);not null" json:"boundary_type"`
	BoundaryFor  string     `gorm:"type:varchar(10);not null;default:'marks'" json:"boundary_for"`
	SubjectID    *uuid.UUID `gorm:"type:char(36)" json:"subject_id,omitempty"`
	SubSubject   string     `gorm:"type:varchar(100)" json:"sub_subject"`
	MinMarks     float64    `gorm:"type:decimal(5,2)" json:"min_marks"`
	MaxMarks     float64    `gorm:"type:decimal(5,2)" json:"max_marks"`
	MinPoints    int        `json:"min_points"`
	MaxPoints    int        `json:"max_points"`
	Grade        string     `gorm:"type:varchar(4);not null" json:"grade"`
	Points       int        `json:"points"`
}

// AuditLog tracks all data changes
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ActorUserID  uuid.UUID `gorm:"type:char(36);index" json:"actor_user_id"`
	Action       string    `gorm:"type:varchar(50);not null" json:"action"`
	ResourceType string    `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   uuid.UUID `gorm:"type:char(36);index" json:"resource_id"`
	Before       JSONB     `gorm:"type:json" json:"before"`
	After        JSONB     `gorm:"type:json" json:"after"`
	Timestamp    time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
	IP           string    `gorm:"type:varchar(45)" json:"ip"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// RefreshToken stores refresh tokens for revocation
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:char(36);not null;index" json:"user_id"`
	Token     string    `gorm:"type:varchar(500);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Revoked   bool      `gorm:"default:false;index" json:"revoked"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

const (
	BoundaryTypeSubject = "subject"
	BoundaryTypeOverall = "overall"
	BoundaryForMarks    = "marks"
	BoundaryForPoints   = "points"
)
