/*
validator.go - Advisory consistency checks on a computed matrix

PURPOSE:
  A successfully generated matrix can still be structurally odd: a skill
  whose points went missing, totals that drifted, a month list with a
  hole. The validator finds these and reports them as data. It never
  returns an error and never blocks use of the matrix; the UI shows the
  matrix with a warning count.

CHECKS:
  missing_skill:      declared skill has no data points at all
  missing_cell:       an in-scope (skill, month) has no data point
  negative_hours:     demand or capacity below zero
  derived_mismatch:   gap/utilization disagree with demand/capacity
  totals_mismatch:    declared totals differ from sums beyond 1e-6
  unknown_reference:  point references an undeclared skill or month
  duplicate_point:    more than one point for a (skill, month)
  month_count:        month list is not ExpectedMonths long
  month_duplicate:    a month key appears twice
  month_sequence:     months are not consecutive calendar months

SEE ALSO:
  - types.go: The invariants being checked
*/
package matrix

import (
	"fmt"
	"math"

	"github.com/warp/capacity-engine/practice"
)

// Tolerance is the float tolerance for totals and derived values.
const Tolerance = 1e-6

type IssueCode string

const (
	IssueMissingSkill     IssueCode = "missing_skill"
	IssueMissingCell      IssueCode = "missing_cell"
	IssueNegativeHours    IssueCode = "negative_hours"
	IssueDerivedMismatch  IssueCode = "derived_mismatch"
	IssueTotalsMismatch   IssueCode = "totals_mismatch"
	IssueUnknownReference IssueCode = "unknown_reference"
	IssueDuplicatePoint   IssueCode = "duplicate_point"
	IssueMonthCount       IssueCode = "month_count"
	IssueMonthDuplicate   IssueCode = "month_duplicate"
	IssueMonthSequence    IssueCode = "month_sequence"

	// IssueSkillsFallback marks a matrix built from the last known skill
	// list because the skill store failed.
	IssueSkillsFallback IssueCode = "skills_fallback"
)

// Issue is one validation finding.
type Issue struct {
	Code    IssueCode `json:"code"`
	Skill   SkillType `json:"skill,omitempty"`
	Month   string    `json:"month,omitempty"`
	Message string    `json:"message"`
	Warning bool      `json:"warning,omitempty"`
}

func (i Issue) String() string { return i.Message }

// IssueMessages returns the human-readable messages.
func IssueMessages(issues []Issue) []string {
	msgs := make([]string, len(issues))
	for i, is := range issues {
		msgs[i] = is.Message
	}
	return msgs
}

// Validator checks matrices. ExpectedMonths > 0 enables the month-window
// checks; DefaultValidator expects a full forecast window.
type Validator struct {
	ExpectedMonths int
}

// DefaultValidator returns a validator for full 12-month matrices.
func DefaultValidator() Validator {
	return Validator{ExpectedMonths: ForecastMonths}
}

// Validate returns all issues found in m, or an empty slice.
func (v Validator) Validate(m Matrix) []Issue {
	issues := []Issue{}
	add := func(code IssueCode, skill SkillType, month, format string, args ...any) {
		issues = append(issues, Issue{Code: code, Skill: skill, Month: month, Message: fmt.Sprintf(format, args...)})
	}

	declaredSkill := make(map[SkillType]bool, len(m.Skills))
	for _, s := range m.Skills {
		declaredSkill[s] = true
	}
	declaredMonth := make(map[string]bool, len(m.Months))
	for _, mb := range m.Months {
		declaredMonth[mb.Key] = true
	}

	pointsPerSkill := make(map[SkillType]int)
	seen := make(map[cellKey]bool, len(m.DataPoints))

	for _, p := range m.DataPoints {
		if !declaredSkill[p.SkillType] {
			add(IssueUnknownReference, p.SkillType, p.Month, "data point references undeclared skill %q", p.SkillType)
		}
		if !declaredMonth[p.Month] {
			add(IssueUnknownReference, p.SkillType, p.Month, "data point references undeclared month %q", p.Month)
		}
		if seen[p.key()] {
			add(IssueDuplicatePoint, p.SkillType, p.Month, "duplicate data point for %s in %s", p.SkillType, p.Month)
		}
		seen[p.key()] = true
		pointsPerSkill[p.SkillType]++

		if p.DemandHours < 0 {
			add(IssueNegativeHours, p.SkillType, p.Month, "negative demand %.2f for %s in %s", p.DemandHours, p.SkillType, p.Month)
		}
		if p.CapacityHours < 0 {
			add(IssueNegativeHours, p.SkillType, p.Month, "negative capacity %.2f for %s in %s", p.CapacityHours, p.SkillType, p.Month)
		}
		if !approx(p.Gap, p.CapacityHours-p.DemandHours) ||
			!approx(p.UtilizationPercent, Utilization(p.DemandHours, p.CapacityHours)) {
			add(IssueDerivedMismatch, p.SkillType, p.Month, "gap/utilization inconsistent for %s in %s", p.SkillType, p.Month)
		}
	}

	for _, s := range m.Skills {
		if pointsPerSkill[s] == 0 {
			add(IssueMissingSkill, s, "", "skill %s has no data points", s)
			continue
		}
		for _, mb := range m.Months {
			if !seen[cellKey{skill: s, month: mb.Key}] {
				add(IssueMissingCell, s, mb.Key, "missing data point for %s in %s", s, mb.Key)
			}
		}
	}

	sums := SumPoints(m.DataPoints)
	if !approx(sums.Demand, m.TotalDemand) {
		add(IssueTotalsMismatch, "", "", "total demand %.6f does not match sum %.6f", m.TotalDemand, sums.Demand)
	}
	if !approx(sums.Capacity, m.TotalCapacity) {
		add(IssueTotalsMismatch, "", "", "total capacity %.6f does not match sum %.6f", m.TotalCapacity, sums.Capacity)
	}
	if !approx(sums.Gap, m.TotalGap) {
		add(IssueTotalsMismatch, "", "", "total gap %.6f does not match sum %.6f", m.TotalGap, sums.Gap)
	}

	if v.ExpectedMonths > 0 {
		issues = append(issues, v.checkMonths(m.Months)...)
	}

	return issues
}

func (v Validator) checkMonths(months []MonthBucket) []Issue {
	var issues []Issue
	if len(months) != v.ExpectedMonths {
		issues = append(issues, Issue{
			Code:    IssueMonthCount,
			Message: fmt.Sprintf("expected %d months, got %d", v.ExpectedMonths, len(months)),
		})
	}

	seen := make(map[string]bool, len(months))
	for i, mb := range months {
		if seen[mb.Key] {
			issues = append(issues, Issue{Code: IssueMonthDuplicate, Month: mb.Key, Message: fmt.Sprintf("month %s appears more than once", mb.Key)})
		}
		seen[mb.Key] = true

		if i == 0 {
			continue
		}
		prev, err := practice.ParseMonthKey(months[i-1].Key)
		if err != nil {
			continue
		}
		if cur, err := practice.ParseMonthKey(mb.Key); err != nil || prev.AddMonths(1) != cur {
			issues = append(issues, Issue{
				Code:    IssueMonthSequence,
				Month:   mb.Key,
				Message: fmt.Sprintf("month %s does not follow %s", mb.Key, months[i-1].Key),
			})
		}
	}
	return issues
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}
