package matrix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/capacity-engine/practice"
)

// =============================================================================
// FILTER - Skill and month subsetting
// =============================================================================

// MonthRange selects months by 0-based index, inclusive on both ends.
type MonthRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FullRange covers every month of m.
func FullRange(m Matrix) MonthRange {
	return MonthRange{Start: 0, End: len(m.Months) - 1}
}

// ParseMonthRange reads a range from optional start and end indices. A
// blank start means 0 and a blank end means the last of n months. Values
// outside [0, n) are kept and clamped by Filter.
func ParseMonthRange(start, end string, n int) (MonthRange, error) {
	r := MonthRange{Start: 0, End: n - 1}
	for _, side := range []struct {
		raw string
		dst *int
	}{{start, &r.Start}, {end, &r.End}} {
		raw := strings.TrimSpace(side.raw)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return r, fmt.Errorf("%w: %q", practice.ErrInvalidIndex, side.raw)
		}
		*side.dst = v
	}
	return r, nil
}

// Clamp limits r to n months. ok is false when nothing remains.
func (r MonthRange) Clamp(n int) (start, end int, ok bool) {
	start, end = r.Start, r.End
	if start < 0 {
		start = 0
	}
	if end > n-1 {
		end = n - 1
	}
	return start, end, start <= end
}

// Filter narrows m to the selected skills and month range.
//
// Indices are positions in m.Months, so a range with Start > 0 is not
// idempotent: a second pass indexes the already shortened list. Use
// FilterByMonthKeys to repeat a window. Skills keep m's order. Out-of-range indices are clamped; a range that
// selects nothing yields no months. An empty selection yields no skills
// and no points, while months are still sliced. Totals are recomputed
// from the surviving points. m is not modified.
func Filter(m Matrix, selected []SkillType, r MonthRange) Matrix {
	var months []MonthBucket
	if start, end, ok := r.Clamp(len(m.Months)); ok {
		months = m.Months[start : end+1]
	}
	return restrict(m, selected, months)
}

// FilterByMonthKeys narrows m to skills and the months whose keys fall in
// [fromKey, toKey]. An empty key leaves that side open. The window is
// resolved against m's own months, so repeating it is a no-op.
func FilterByMonthKeys(m Matrix, selected []SkillType, fromKey, toKey string) Matrix {
	return Filter(m, selected, KeyRange(m, fromKey, toKey))
}

// KeyRange returns the index range of m's months whose keys fall in
// [fromKey, toKey]. Months are consecutive, so the matches are contiguous.
// No match yields a range that Clamp rejects.
func KeyRange(m Matrix, fromKey, toKey string) MonthRange {
	r := MonthRange{Start: len(m.Months), End: -1}
	for i, mb := range m.Months {
		if (fromKey == "" || mb.Key >= fromKey) && (toKey == "" || mb.Key <= toKey) {
			if r.End < 0 {
				r.Start = i
			}
			r.End = i
		}
	}
	return r
}

// restrict keeps points whose skill and month survive, in one step.
func restrict(m Matrix, selected []SkillType, months []MonthBucket) Matrix {
	want := make(map[SkillType]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}

	skills := make([]SkillType, 0, len(selected))
	keep := make(map[SkillType]bool, len(selected))
	for _, s := range m.Skills {
		if want[s] && !keep[s] {
			skills = append(skills, s)
			keep[s] = true
		}
	}

	inMonths := make(map[string]bool, len(months))
	for _, mb := range months {
		inMonths[mb.Key] = true
	}

	points := make([]DataPoint, 0)
	for _, p := range m.DataPoints {
		if keep[p.SkillType] && inMonths[p.Month] {
			points = append(points, p)
		}
	}

	return New(skills, months, points)
}
