package grading

import "sort"

// PointBand maps an inclusive total-point range to an overall grade
type PointBand struct {
	Grade     string `json:"grade"`
	MinPoints int    `json:"min_points"`
	MaxPoints int    `json:"max_points"`
}

// DefaultPointBands is the aggregate table for seven counted subjects on the
// 12-point scale, highest first. Used whenever a class has no point boundaries.
var DefaultPointBands = []PointBand{
	{Grade: "A", MinPoints: 81, MaxPoints: 84},
	{Grade: "A-", MinPoints: 74, MaxPoints: 80},
	{Grade: "B+", MinPoints: 67, MaxPoints: 73},
	{Grade: "B", MinPoints: 60, MaxPoints: 66},
	{Grade: "B-", MinPoints: 53, MaxPoints: 59},
	{Grade: "C+", MinPoints: 46, MaxPoints: 52},
	{Grade: "C", MinPoints: 39, MaxPoints: 45},
	{Grade: "C-", MinPoints: 32, MaxPoints: 38},
	{Grade: "D+", MinPoints: 25, MaxPoints: 31},
	{Grade: "D", MinPoints: 18, MaxPoints: 24},
	{Grade: "D-", MinPoints: 11, MaxPoints: 17},
	{Grade: "E", MinPoints: 0, MaxPoints: 10},
}

// PointBandsFromBoundaries collects the class's points-purpose boundaries
func PointBandsFromBoundaries(className string, boundaries []Boundary) []PointBand {
	var bands []PointBand
	for _, b := range boundaries {
		if b.ClassName != className || b.Purpose != PurposePoints {
			continue
		}
		bands = append(bands, PointBand{Grade: b.Grade, MinPoints: b.MinPoints, MaxPoints: b.MaxPoints})
	}
	return bands
}

// ResolveOverall returns the grade of the band containing total. With no
// bands the default table is used. Totals outside every band never fail:
// they clamp to the nearest terminal band, and totals in a gap between bands
// take the nearest band (the lower one when equidistant).
func ResolveOverall(total int, bands []PointBand) string {
	if len(bands) == 0 {
		bands = DefaultPointBands
	}

	for _, b := range bands {
		if total >= b.MinPoints && total <= b.MaxPoints {
			return b.Grade
		}
	}

	sorted := make([]PointBand, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })

	if total < sorted[0].MinPoints {
		return sorted[0].Grade
	}
	last := sorted[len(sorted)-1]
	if total > last.MaxPoints {
		return last.Grade
	}

	best := sorted[0]
	bestDist := distance(total, best)
	for _, b := range sorted[1:] {
		if d := distance(total, b); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best.Grade
}

func distance(total int, b PointBand) int {
	switch {
	case total < b.MinPoints:
		return b.MinPoints - total
	case total > b.MaxPoints:
		return total - b.MaxPoints
	default:
		return 0
	}
}
