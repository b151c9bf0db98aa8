package grading

import (
	"sort"
	"strings"
)

// Group is the reduction category of a subject
type Group int

const (
	GroupOther Group = iota
	GroupCore
	GroupSciences
	GroupTechnical
	GroupHumanities
)

func (g Group) String() string {
	switch g {
	case GroupCore:
		return "core"
	case GroupSciences:
		return "sciences"
	case GroupTechnical:
		return "technical"
	case GroupHumanities:
		return "humanities"
	default:
		return "other"
	}
}

// ParseGroup parses a persisted category name. ok is false for unknown names.
func ParseGroup(s string) (Group, bool) {
	switch normalizeTitle(s) {
	case "core":
		return GroupCore, true
	case "sciences", "science":
		return GroupSciences, true
	case "technical":
		return GroupTechnical, true
	case "humanities":
		return GroupHumanities, true
	case "other":
		return GroupOther, true
	}
	return GroupOther, false
}

// Maximum subjects counted per elective group
const keepPerGroup = 2

var subjectGroups = map[string]Group{
	"english":     GroupCore,
	"kiswahili":   GroupCore,
	"mathematics": GroupCore,
	"maths":       GroupCore,
	"math":        GroupCore,

	"biology":   GroupSciences,
	"chemistry": GroupSciences,
	"physics":   GroupSciences,

	"agriculture":           GroupTechnical,
	"home science":          GroupTechnical,
	"computer":              GroupTechnical,
	"computer studies":      GroupTechnical,
	"business":              GroupTechnical,
	"business studies":      GroupTechnical,
	"art and design":        GroupTechnical,
	"music":                 GroupTechnical,
	"french":                GroupTechnical,
	"german":                GroupTechnical,
	"arabic":                GroupTechnical,
	"aviation":              GroupTechnical,
	"aviation technology":   GroupTechnical,
	"building construction": GroupTechnical,
	"power mechanics":       GroupTechnical,
	"electricity":           GroupTechnical,
	"drawing and design":    GroupTechnical,
	"woodwork":              GroupTechnical,
	"metalwork":             GroupTechnical,
	"kenyan sign language":  GroupTechnical,

	"history":                       GroupHumanities,
	"history and government":        GroupHumanities,
	"geography":                     GroupHumanities,
	"cre":                           GroupHumanities,
	"ire":                           GroupHumanities,
	"hre":                           GroupHumanities,
	"christian religious education": GroupHumanities,
	"islamic religious education":   GroupHumanities,
	"hindu religious education":     GroupHumanities,
}

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	return strings.Join(strings.Fields(s), " ")
}

// Classify returns the group of a subject title. Unknown titles are
// GroupOther and are always counted.
func Classify(title string) Group {
	return subjectGroups[normalizeTitle(title)]
}

// ClassifySubject prefers an explicit persisted category over the title table
func ClassifySubject(title, category string) Group {
	if g, ok := ParseGroup(category); ok {
		return g
	}
	return Classify(title)
}

// IsKnownSubject reports whether title is in the classification table
func IsKnownSubject(title string) bool {
	_, ok := subjectGroups[normalizeTitle(title)]
	return ok
}

// SubjectScore is one graded subject result of a student
type SubjectScore struct {
	Label    string
	Title    string
	Category string
	Points   int
	Marks    float64
}

// Reduction is the outcome of the best-of-group reduction for one student
type Reduction struct {
	Counting    []SubjectScore
	Dropped     []SubjectScore
	TotalPoints int
}

// DroppedLabels returns the labels of the dropped subjects
func (r Reduction) DroppedLabels() []string {
	labels := make([]string, 0, len(r.Dropped))
	for _, s := range r.Dropped {
		labels = append(labels, s.Label)
	}
	return labels
}

// Reduce keeps the best two subjects of each elective group (points, then
// marks, then input order) and every core and unclassified subject. Counting
// and Dropped keep the input order.
func Reduce(results []SubjectScore) Reduction {
	byGroup := make(map[Group][]int)
	for i, s := range results {
		g := ClassifySubject(s.Title, s.Category)
		byGroup[g] = append(byGroup[g], i)
	}

	dropped := make(map[int]bool)
	for _, g := range []Group{GroupSciences, GroupTechnical, GroupHumanities} {
		idx := byGroup[g]
		if len(idx) <= keepPerGroup {
			continue
		}
		sort.SliceStable(idx, func(a, b int) bool {
			ra, rb := results[idx[a]], results[idx[b]]
			if ra.Points != rb.Points {
				return ra.Points > rb.Points
			}
			return ra.Marks > rb.Marks
		})
		for _, i := range idx[keepPerGroup:] {
			dropped[i] = true
		}
	}

	var red Reduction
	for i, s := range results {
		if dropped[i] {
			red.Dropped = append(red.Dropped, s)
			continue
		}
		red.Counting = append(red.Counting, s)
		red.TotalPoints += s.Points
	}
	return red
}

// SumPoints is the unreduced total used by classes that count every subject
func SumPoints(results []SubjectScore) int {
	total := 0
	for _, s := range results {
		total += s.Points
	}
	return total
}

// SevenSubjectPolicy decides which classes rank on the reduced total
type SevenSubjectPolicy struct {
	ClassPrefixes []string
}

// DefaultSevenSubjectPolicy applies to the two upper forms
var DefaultSevenSubjectPolicy = SevenSubjectPolicy{ClassPrefixes: []string{"Form 3", "Form 4"}}

// UsesSevenSubjects reports whether className starts with one of the policy's prefixes
func (p SevenSubjectPolicy) UsesSevenSubjects(className string) bool {
	name := normalizeTitle(className)
	for _, prefix := range p.ClassPrefixes {
		pre := normalizeTitle(prefix)
		if pre != "" && strings.HasPrefix(name, pre) {
			return true
		}
	}
	return false
}
