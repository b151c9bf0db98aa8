package grading

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Number of students listed as most improved / most dropped
const topMovers = 3

// Student is a roster entry. Roster order is the final ranking tie-break.
type Student struct {
	ID              uuid.UUID `json:"id"`
	FullName        string    `json:"full_name"`
	AdmissionNumber string    `json:"admission_number"`
}

// Offering is a subject (or sub-subject) taught in the class
type Offering struct {
	SubjectID  uuid.UUID `json:"subject_id"`
	Title      string    `json:"title"`
	SubSubject string    `json:"sub_subject,omitempty"`
	Category   string    `json:"-"`
}

// Label is the offering's subject label
func (o Offering) Label() string {
	return SubjectLabel(o.Title, o.SubSubject)
}

// SubjectLabel is the display label of a subject: the title, suffixed with
// the sub-subject when there is one. Marks and matrix columns are keyed by it.
func SubjectLabel(title, subSubject string) string {
	if strings.TrimSpace(subSubject) == "" {
		return title
	}
	return title + " - " + subSubject
}

// MarkEntry is a recorded mark as seen by the aggregator
type MarkEntry struct {
	ID        uuid.UUID
	StudentID uuid.UUID
	Label     string
	Marks     float64
}

// CellKey addresses one cell of the matrix
type CellKey struct {
	StudentID uuid.UUID
	Label     string
}

// Cell is one student's result for one subject
type Cell struct {
	MarkID  uuid.UUID `json:"mark_id"`
	Label   string    `json:"subject"`
	Marks   float64   `json:"marks"`
	Grade   string    `json:"grade"`
	Points  int       `json:"points"`
	Delta   *float64  `json:"delta,omitempty"`
	Dropped bool      `json:"dropped,omitempty"`
}

// Standing is a student's row in the matrix
type Standing struct {
	Position        int      `json:"position"`
	Student         Student  `json:"student"`
	Cells           []*Cell  `json:"cells"` // aligned with Matrix.Subjects; nil means no result
	SubjectCount    int      `json:"subject_count"`
	TotalMarks      float64  `json:"total_marks"`
	TotalPoints     int      `json:"total_points"`
	MeanMarks       float64  `json:"mean_marks"`
	MeanGrade       string   `json:"mean_grade"`
	OverallGrade    string   `json:"overall_grade"`
	DroppedSubjects []string `json:"dropped_subjects,omitempty"`
	TotalMarksDelta *float64 `json:"total_marks_delta,omitempty"`
}

// Cell returns the standing's cell for label, or nil
func (s Standing) Cell(subjects []string, label string) *Cell {
	for i, l := range subjects {
		if l == label && i < len(s.Cells) {
			return s.Cells[i]
		}
	}
	return nil
}

// SubjectAverage is the class mean for one subject
type SubjectAverage struct {
	Label   string  `json:"subject"`
	Average float64 `json:"average"`
	Grade   string  `json:"grade"`
	Count   int     `json:"count"`
}

// StudentDelta is a student's change in total marks versus the previous exam
type StudentDelta struct {
	StudentID uuid.UUID `json:"student_id"`
	FullName  string    `json:"full_name"`
	Delta     float64   `json:"delta"`
}

// SubjectDelta is the sum of per-student mark changes for a subject
type SubjectDelta struct {
	Label      string  `json:"subject"`
	TotalDelta float64 `json:"total_delta"`
}

// Matrix is the aggregated results view of one exam for one class
type Matrix struct {
	ClassName           string           `json:"class_name"`
	SevenSubjects       bool             `json:"seven_subjects"`
	BoundaryVersion     string           `json:"boundary_version"`
	Subjects            []string         `json:"subjects"`
	Standings           []Standing       `json:"standings"`
	SubjectAverages     []SubjectAverage `json:"subject_averages"`
	MostImproved        []StudentDelta   `json:"most_improved"`
	MostDropped         []StudentDelta   `json:"most_dropped"`
	MostImprovedSubject *SubjectDelta    `json:"most_improved_subject,omitempty"`
	NeedsAttention      *SubjectDelta    `json:"needs_attention,omitempty"`
}

// MatrixInput is everything BuildMatrix needs
type MatrixInput struct {
	ClassName     string
	Roster        []Student
	Offerings     []Offering
	Current       []MarkEntry
	Previous      []MarkEntry
	Resolver      *Resolver
	PointBands    []PointBand
	SevenSubjects bool
}

// BuildMatrix grades, totals and ranks the roster. Marks for students not
// in the roster or subjects not offered are ignored.
func BuildMatrix(in MatrixInput) *Matrix {
	offered := make(map[string]Offering, len(in.Offerings))
	subjects := make([]string, 0, len(in.Offerings))
	for _, o := range in.Offerings {
		label := o.Label()
		if _, dup := offered[label]; dup {
			continue
		}
		offered[label] = o
		subjects = append(subjects, label)
	}

	current := indexMarks(in.Current, offered)
	previous := indexMarks(in.Previous, offered)

	m := &Matrix{
		ClassName:     in.ClassName,
		SevenSubjects: in.SevenSubjects,
		Subjects:      subjects,
	}
	if in.Resolver != nil {
		m.BoundaryVersion = in.Resolver.Version()
	}

	standings := make([]Standing, 0, len(in.Roster))
	for _, st := range in.Roster {
		standings = append(standings, buildStanding(in, st, subjects, offered, current, previous))
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].TotalPoints != standings[j].TotalPoints {
			return standings[i].TotalPoints > standings[j].TotalPoints
		}
		return standings[i].MeanMarks > standings[j].MeanMarks
	})
	for i := range standings {
		standings[i].Position = i + 1
	}
	m.Standings = standings

	m.SubjectAverages = subjectAverages(in.Resolver, in.Roster, subjects, offered, current)
	m.MostImproved, m.MostDropped = studentMovers(standings)
	m.MostImprovedSubject, m.NeedsAttention = subjectMovers(in.Roster, subjects, current, previous)
	return m
}

func indexMarks(entries []MarkEntry, offered map[string]Offering) map[CellKey]MarkEntry {
	idx := make(map[CellKey]MarkEntry, len(entries))
	for _, e := range entries {
		if _, ok := offered[e.Label]; !ok {
			continue
		}
		idx[CellKey{StudentID: e.StudentID, Label: e.Label}] = e
	}
	return idx
}

func buildStanding(in MatrixInput, st Student, subjects []string, offered map[string]Offering, current, previous map[CellKey]MarkEntry) Standing {
	s := Standing{Student: st, Cells: make([]*Cell, len(subjects))}

	var scores []SubjectScore
	var prevTotal float64
	hasPrev := false
	for i, label := range subjects {
		key := CellKey{StudentID: st.ID, Label: label}
		if p, ok := previous[key]; ok {
			prevTotal += p.Marks
			hasPrev = true
		}
		e, ok := current[key]
		if !ok {
			continue
		}
		o := offered[label]
		g := in.Resolver.Resolve(e.Marks, &SubjectRef{ID: o.SubjectID, SubSubject: o.SubSubject})
		cell := &Cell{MarkID: e.ID, Label: label, Marks: e.Marks, Grade: g.Letter, Points: g.Points}
		if p, ok := previous[key]; ok {
			d := e.Marks - p.Marks
			cell.Delta = &d
		}
		s.Cells[i] = cell
		s.SubjectCount++
		s.TotalMarks += e.Marks
		scores = append(scores, SubjectScore{Label: label, Title: o.Title, Category: o.Category, Points: g.Points, Marks: e.Marks})
	}

	if in.SevenSubjects {
		red := Reduce(scores)
		s.TotalPoints = red.TotalPoints
		s.DroppedSubjects = red.DroppedLabels()
		for _, label := range s.DroppedSubjects {
			if c := s.Cell(subjects, label); c != nil {
				c.Dropped = true
			}
		}
	} else {
		s.TotalPoints = SumPoints(scores)
	}

	if s.SubjectCount > 0 {
		s.MeanMarks = s.TotalMarks / float64(s.SubjectCount)
	}
	s.MeanGrade = in.Resolver.Resolve(s.MeanMarks, nil).Letter
	if in.SevenSubjects {
		s.OverallGrade = ResolveOverall(s.TotalPoints, in.PointBands)
	} else {
		s.OverallGrade = s.MeanGrade
	}

	if hasPrev && s.SubjectCount > 0 {
		d := s.TotalMarks - prevTotal
		s.TotalMarksDelta = &d
	}
	return s
}

func subjectAverages(r *Resolver, roster []Student, subjects []string, offered map[string]Offering, current map[CellKey]MarkEntry) []SubjectAverage {
	avgs := make([]SubjectAverage, 0, len(subjects))
	for _, label := range subjects {
		var sum float64
		count := 0
		for _, st := range roster {
			if e, ok := current[CellKey{StudentID: st.ID, Label: label}]; ok {
				sum += e.Marks
				count++
			}
		}
		avg := SubjectAverage{Label: label, Count: count}
		if count > 0 {
			o := offered[label]
			avg.Average = sum / float64(count)
			avg.Grade = r.Resolve(avg.Average, &SubjectRef{ID: o.SubjectID, SubSubject: o.SubSubject}).Letter
		}
		avgs = append(avgs, avg)
	}
	return avgs
}

func studentMovers(standings []Standing) (improved, dropped []StudentDelta) {
	var deltas []StudentDelta
	for _, s := range standings {
		if s.TotalMarksDelta == nil {
			continue
		}
		deltas = append(deltas, StudentDelta{StudentID: s.Student.ID, FullName: s.Student.FullName, Delta: *s.TotalMarksDelta})
	}

	sort.SliceStable(deltas, func(i, j int) bool { return deltas[i].Delta > deltas[j].Delta })
	for _, d := range deltas {
		if len(improved) == topMovers || d.Delta <= 0 {
			break
		}
		improved = append(improved, d)
	}
	for i := len(deltas) - 1; i >= 0; i-- {
		d := deltas[i]
		if len(dropped) == topMovers || d.Delta >= 0 {
			break
		}
		dropped = append(dropped, d)
	}
	return improved, dropped
}

func subjectMovers(roster []Student, subjects []string, current, previous map[CellKey]MarkEntry) (best, worst *SubjectDelta) {
	for _, label := range subjects {
		var sum float64
		pairs := 0
		for _, st := range roster {
			key := CellKey{StudentID: st.ID, Label: label}
			c, okC := current[key]
			p, okP := previous[key]
			if okC && okP {
				sum += c.Marks - p.Marks
				pairs++
			}
		}
		if pairs == 0 {
			continue
		}
		if best == nil || sum > best.TotalDelta {
			best = &SubjectDelta{Label: label, TotalDelta: sum}
		}
		if worst == nil || sum < worst.TotalDelta {
			worst = &SubjectDelta{Label: label, TotalDelta: sum}
		}
	}
	if worst != nil && worst.TotalDelta >= 0 {
		worst = nil
	}
	return best, worst
}
