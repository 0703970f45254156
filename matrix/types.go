/*
Package matrix builds and transforms the skill × month capacity grid.

PURPOSE:
  The capacity matrix compares demand (hours of client work requiring a
  skill) with capacity (staff hours available for that skill) for each
  month of a forecast window. This package owns the model, generation,
  validation and filtering. Caching, export and HTTP live elsewhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - SkillType: A skill name. Plain data, never a closed set
  - MonthBucket: One calendar month of the window
  - DataPoint: Demand vs capacity for one (skill, month) cell
  - Matrix: The whole grid plus totals

INVARIANTS:
  1. DataPoint.Gap == CapacityHours - DemandHours
  2. DataPoint.UtilizationPercent == Demand/Capacity*100, or 0 without capacity
  3. At most one point per (skill, month)
  4. Totals equal the sums over DataPoints and are recomputed on every
     transformation, never carried over
  5. DataPoints only reference declared skills and months

  Matrix values are not shared mutably. Transformations return new values;
  Clone gives callers a private copy.

SEE ALSO:
  - generator.go: Builds a Matrix from practice data
  - validator.go: Advisory consistency checks
  - filter.go: Skill/month subsetting
*/
package matrix

import (
	"github.com/warp/capacity-engine/practice"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// SkillType names a staffing skill ("Senior", "CPA", ...). The valid set is
// loaded at runtime; see SkillCatalog.
type SkillType string

// ForecastMode selects the demand and capacity sources.
type ForecastMode string

const (
	// ModeVirtual projects demand from recurring templates against nominal availability.
	ModeVirtual ForecastMode = "virtual"
	// ModeActual uses scheduled task instances against availability with exceptions applied.
	ModeActual ForecastMode = "actual"
)

func (m ForecastMode) Valid() bool { return m == ModeVirtual || m == ModeActual }

// ForecastMonths is the length of a full forecast window.
const ForecastMonths = 12

// =============================================================================
// MONTH BUCKET
// =============================================================================

type MonthBucket struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// NewMonthBucket builds the bucket for a month key.
func NewMonthBucket(key practice.MonthKey) MonthBucket {
	return MonthBucket{Key: string(key), Label: key.Label()}
}

// MonthWindow returns n consecutive buckets starting at first.
func MonthWindow(first practice.MonthKey, n int) []MonthBucket {
	months := make([]MonthBucket, 0, n)
	for i := 0; i < n; i++ {
		months = append(months, NewMonthBucket(first.AddMonths(i)))
	}
	return months
}

// =============================================================================
// DATA POINT
// =============================================================================

type DataPoint struct {
	SkillType          SkillType `json:"skillType"`
	Month              string    `json:"month"`
	DemandHours        float64   `json:"demandHours"`
	CapacityHours      float64   `json:"capacityHours"`
	Gap                float64   `json:"gap"`
	UtilizationPercent float64   `json:"utilizationPercent"`
}

// NewDataPoint derives Gap and UtilizationPercent from demand and capacity.
func NewDataPoint(skill SkillType, month string, demand, capacity float64) DataPoint {
	return DataPoint{
		SkillType:          skill,
		Month:              month,
		DemandHours:        demand,
		CapacityHours:      capacity,
		Gap:                capacity - demand,
		UtilizationPercent: Utilization(demand, capacity),
	}
}

// Utilization returns demand as a percentage of capacity, 0 without capacity.
func Utilization(demand, capacity float64) float64 {
	if capacity > 0 {
		return demand / capacity * 100
	}
	return 0
}

type cellKey struct {
	skill SkillType
	month string
}

func (p DataPoint) key() cellKey { return cellKey{skill: p.SkillType, month: p.Month} }

// =============================================================================
// MATRIX
// =============================================================================

type Matrix struct {
	Skills        []SkillType   `json:"skills"`
	Months        []MonthBucket `json:"months"`
	DataPoints    []DataPoint   `json:"dataPoints"`
	TotalDemand   float64       `json:"totalDemand"`
	TotalCapacity float64       `json:"totalCapacity"`
	TotalGap      float64       `json:"totalGap"`
}

// New assembles a matrix and computes its totals from points.
func New(skills []SkillType, months []MonthBucket, points []DataPoint) Matrix {
	m := Matrix{
		Skills:     append([]SkillType{}, skills...),
		Months:     append([]MonthBucket{}, months...),
		DataPoints: append([]DataPoint{}, points...),
	}
	m.recomputeTotals()
	return m
}

// Totals holds the three aggregate sums.
type Totals struct {
	Demand   float64 `json:"demand"`
	Capacity float64 `json:"capacity"`
	Gap      float64 `json:"gap"`
}

// SumPoints totals a slice of points.
func SumPoints(points []DataPoint) Totals {
	var t Totals
	for _, p := range points {
		t.Demand += p.DemandHours
		t.Capacity += p.CapacityHours
		t.Gap += p.Gap
	}
	return t
}

func (m *Matrix) recomputeTotals() {
	t := SumPoints(m.DataPoints)
	m.TotalDemand = t.Demand
	m.TotalCapacity = t.Capacity
	m.TotalGap = t.Gap
}

// Totals returns the declared totals.
func (m Matrix) Totals() Totals {
	return Totals{Demand: m.TotalDemand, Capacity: m.TotalCapacity, Gap: m.TotalGap}
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	c := m
	c.Skills = append([]SkillType{}, m.Skills...)
	c.Months = append([]MonthBucket{}, m.Months...)
	c.DataPoints = append([]DataPoint{}, m.DataPoints...)
	return c
}

// Point returns the data point for (skill, month), if present.
func (m Matrix) Point(skill SkillType, month string) (DataPoint, bool) {
	for _, p := range m.DataPoints {
		if p.SkillType == skill && p.Month == month {
			return p, true
		}
	}
	return DataPoint{}, false
}

// MonthKeys returns the month keys in order.
func (m Matrix) MonthKeys() []string {
	keys := make([]string, len(m.Months))
	for i, b := range m.Months {
		keys[i] = b.Key
	}
	return keys
}

// AllSkills returns the matrix's declared skills, for "select all" filters.
func AllSkills(m Matrix) []SkillType {
	return append([]SkillType{}, m.Skills...)
}
