package matrix

import "sort"

// =============================================================================
// ANALYTICS - Roll-ups used by export and the dashboard
// =============================================================================

// SkillSummary totals one skill across the matrix's months.
type SkillSummary struct {
	SkillType          SkillType `json:"skillType"`
	DemandHours        float64   `json:"demandHours"`
	CapacityHours      float64   `json:"capacityHours"`
	Gap                float64   `json:"gap"`
	UtilizationPercent float64   `json:"utilizationPercent"`
}

// MonthSummary totals one month across the matrix's skills.
type MonthSummary struct {
	Month              string  `json:"month"`
	Label              string  `json:"label"`
	DemandHours        float64 `json:"demandHours"`
	CapacityHours      float64 `json:"capacityHours"`
	Gap                float64 `json:"gap"`
	UtilizationPercent float64 `json:"utilizationPercent"`
}

// Analytics summarizes a matrix.
//
// Shortages are cells with a negative gap, most negative first. Surpluses
// are cells with a positive gap, largest first. PeakMonth is the month with
// the highest demand; empty when the matrix has no demand.
type Analytics struct {
	Totals    Totals         `json:"totals"`
	BySkill   []SkillSummary `json:"bySkill"`
	ByMonth   []MonthSummary `json:"byMonth"`
	Shortages []DataPoint    `json:"shortages"`
	Surpluses []DataPoint    `json:"surpluses"`
	PeakMonth string         `json:"peakMonth,omitempty"`
}

// Analyze computes analytics for m. Rows follow the matrix's skill and
// month order; points referencing undeclared skills or months are ignored
// in the breakdowns but still counted in Totals.
func Analyze(m Matrix) Analytics {
	a := Analytics{
		Totals:    SumPoints(m.DataPoints),
		BySkill:   make([]SkillSummary, len(m.Skills)),
		ByMonth:   make([]MonthSummary, len(m.Months)),
		Shortages: []DataPoint{},
		Surpluses: []DataPoint{},
	}

	skillIdx := make(map[SkillType]int, len(m.Skills))
	for i, s := range m.Skills {
		skillIdx[s] = i
		a.BySkill[i].SkillType = s
	}
	monthIdx := make(map[string]int, len(m.Months))
	for i, mb := range m.Months {
		monthIdx[mb.Key] = i
		a.ByMonth[i].Month = mb.Key
		a.ByMonth[i].Label = mb.Label
	}

	for _, p := range m.DataPoints {
		if i, ok := skillIdx[p.SkillType]; ok {
			a.BySkill[i].DemandHours += p.DemandHours
			a.BySkill[i].CapacityHours += p.CapacityHours
			a.BySkill[i].Gap += p.Gap
		}
		if i, ok := monthIdx[p.Month]; ok {
			a.ByMonth[i].DemandHours += p.DemandHours
			a.ByMonth[i].CapacityHours += p.CapacityHours
			a.ByMonth[i].Gap += p.Gap
		}
		switch {
		case p.Gap < 0:
			a.Shortages = append(a.Shortages, p)
		case p.Gap > 0:
			a.Surpluses = append(a.Surpluses, p)
		}
	}

	for i := range a.BySkill {
		a.BySkill[i].UtilizationPercent = Utilization(a.BySkill[i].DemandHours, a.BySkill[i].CapacityHours)
	}
	var peak float64
	for i := range a.ByMonth {
		mo := &a.ByMonth[i]
		mo.UtilizationPercent = Utilization(mo.DemandHours, mo.CapacityHours)
		if mo.DemandHours > peak {
			peak = mo.DemandHours
			a.PeakMonth = mo.Month
		}
	}

	sort.SliceStable(a.Shortages, func(i, j int) bool { return a.Shortages[i].Gap < a.Shortages[j].Gap })
	sort.SliceStable(a.Surpluses, func(i, j int) bool { return a.Surpluses[i].Gap > a.Surpluses[j].Gap })

	return a
}
