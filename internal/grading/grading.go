package grading

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	ScopeSubject = "subject"
	ScopeOverall = "overall"

	PurposeMarks  = "marks"
	PurposePoints = "points"

	// Returned when a mark falls in no configured band.
	DefaultGrade  = "E"
	DefaultPoints = 1
)

// Boundary is one grading policy row for a class.
type Boundary struct {
	ClassName  string
	Scope      string // ScopeSubject | ScopeOverall
	Purpose    string // PurposeMarks | PurposePoints
	SubjectID  uuid.UUID
	SubSubject string
	MinMarks   float64
	MaxMarks   float64
	MinPoints  int
	MaxPoints  int
	Grade      string
	Points     int
}

func (b Boundary) contains(mark float64) bool {
	return mark >= b.MinMarks && mark <= b.MaxMarks
}

// Grade is a letter grade and its point value
type Grade struct {
	Letter string `json:"grade"`
	Points int    `json:"points"`
}

// SubjectRef selects subject-specific boundaries
type SubjectRef struct {
	ID         uuid.UUID
	SubSubject string
}

// Resolver maps marks to grades for one class
type Resolver struct {
	className string
	subject   []Boundary
	overall   []Boundary
	version   string
}

// NewResolver keeps the class's mark-purpose boundaries in the order given.
// When ranges overlap the first match in that order wins.
func NewResolver(className string, boundaries []Boundary) *Resolver {
	r := &Resolver{className: className}
	var sig strings.Builder
	for _, b := range boundaries {
		if b.ClassName != className || b.Purpose == PurposePoints {
			continue
		}
		switch b.Scope {
		case ScopeSubject:
			r.subject = append(r.subject, b)
		case ScopeOverall:
			r.overall = append(r.overall, b)
		default:
			continue
		}
		fmt.Fprintf(&sig, "%s|%s|%s|%.2f|%.2f|%s|%d;", b.Scope, b.SubjectID, b.SubSubject, b.MinMarks, b.MaxMarks, b.Grade, b.Points)
	}
	r.version = hashRuleVersion(sig.String())
	return r
}

// Resolve returns the grade for mark. Subject-specific boundaries are tried
// first when subject is non-nil, then the class's overall boundaries, then
// the (E, 1) default.
func (r *Resolver) Resolve(mark float64, subject *SubjectRef) Grade {
	if r == nil {
		return Grade{Letter: DefaultGrade, Points: DefaultPoints}
	}
	// Marks are stored to two decimals; means are compared at the same precision
	mark = math.Round(mark*100) / 100
	if subject != nil && subject.ID != uuid.Nil {
		for _, b := range r.subject {
			if b.SubjectID == subject.ID && b.SubSubject == subject.SubSubject && b.contains(mark) {
				return Grade{Letter: b.Grade, Points: b.Points}
			}
		}
	}
	for _, b := range r.overall {
		if b.contains(mark) {
			return Grade{Letter: b.Grade, Points: b.Points}
		}
	}
	return Grade{Letter: DefaultGrade, Points: DefaultPoints}
}

// ClassName returns the class the resolver was built for
func (r *Resolver) ClassName() string {
	return r.className
}

// Version is a short hash of the boundary set, stable for identical input.
func (r *Resolver) Version() string {
	return r.version
}

func hashRuleVersion(version string) string {
	hash := sha256.Sum256([]byte(version))
	return fmt.Sprintf("%x", hash[:8])
}
