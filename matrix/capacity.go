package matrix

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/capacity-engine/practice"
)

// =============================================================================
// CAPACITY - Staff hours per (skill, month)
// =============================================================================

// staffMonth groups one staff member's availability records for a month.
type staffMonth struct {
	staff practice.StaffID
	month practice.MonthKey
}

// capacityCells sums nominal availability per cell.
func capacityCells(avail []practice.Availability) map[cellKey]practice.Hours {
	cells := make(map[cellKey]practice.Hours)
	for _, a := range avail {
		k := cellKey{skill: SkillType(a.Skill), month: string(a.Month)}
		cells[k] = cells[k].Add(a.AvailableHours.ClampZero())
	}
	return cells
}

// ApplyExceptions returns availability adjusted for leave and overrides.
//
// Overrides are applied before leave, so leave taken in an overridden
// month reduces the overridden figure. Records without a StaffID are
// pooled capacity and are never adjusted. No record drops below zero.
func ApplyExceptions(avail []practice.Availability, exceptions []practice.AvailabilityException) []practice.Availability {
	out := make([]practice.Availability, len(avail))
	copy(out, avail)

	index := make(map[staffMonth][]int)
	for i, a := range out {
		if a.StaffID == "" {
			continue
		}
		k := staffMonth{staff: a.StaffID, month: a.Month}
		index[k] = append(index[k], i)
	}

	ordered := append([]practice.AvailabilityException{}, exceptions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind == practice.ExceptionOverride && ordered[j].Kind != practice.ExceptionOverride
	})

	for _, e := range ordered {
		if e.StaffID == "" {
			continue
		}
		k := staffMonth{staff: e.StaffID, month: e.Month}

		if e.Skill != "" {
			i, ok := findSkill(out, index[k], e.Skill)
			if !ok {
				if e.Kind != practice.ExceptionOverride {
					continue
				}
				out = append(out, practice.Availability{StaffID: e.StaffID, Skill: e.Skill, Month: e.Month})
				i = len(out) - 1
				index[k] = append(index[k], i)
			}
			out[i].AvailableHours = adjust(out[i].AvailableHours, e)
			continue
		}

		spreadException(out, index[k], e)
	}

	return out
}

func findSkill(avail []practice.Availability, idx []int, skill string) (int, bool) {
	for _, i := range idx {
		if avail[i].Skill == skill {
			return i, true
		}
	}
	return 0, false
}

func adjust(h practice.Hours, e practice.AvailabilityException) practice.Hours {
	switch e.Kind {
	case practice.ExceptionOverride:
		return e.Hours.ClampZero()
	case practice.ExceptionLeave:
		return h.Sub(e.Hours).ClampZero()
	}
	return h
}

// spreadException applies a staff-wide exception across the staff member's
// records for the month in proportion to each record's share of the total.
func spreadException(avail []practice.Availability, idx []int, e practice.AvailabilityException) {
	if len(idx) == 0 {
		return
	}

	total := practice.ZeroHours()
	for _, i := range idx {
		total = total.Add(avail[i].AvailableHours)
	}

	n := decimal.NewFromInt(int64(len(idx)))
	for _, i := range idx {
		// portion = hours × nominal / total
		var portion practice.Hours
		if total.IsZero() {
			portion = practice.Hours{Value: e.Hours.Value.Div(n)}
		} else {
			portion = practice.Hours{Value: e.Hours.Value.Mul(avail[i].AvailableHours.Value).Div(total.Value)}
		}

		switch e.Kind {
		case practice.ExceptionOverride:
			avail[i].AvailableHours = portion.ClampZero()
		case practice.ExceptionLeave:
			avail[i].AvailableHours = avail[i].AvailableHours.Sub(portion).ClampZero()
		}
	}
}
