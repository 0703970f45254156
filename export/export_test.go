package export_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capacity-engine/export"
	"github.com/warp/capacity-engine/matrix"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// awkwardMatrix uses values that do not print exactly and a skill name that
// needs CSV escaping.
func awkwardMatrix() matrix.Matrix {
	skills := []matrix.SkillType{"Senior", `Tax, "Advanced"`}
	months := matrix.MonthWindow("2026-01", 2)
	// Summed at run time; a constant 0.1+0.2 folds to exactly 0.3.
	a, b := 0.1, 0.2
	return matrix.New(skills, months, []matrix.DataPoint{
		matrix.NewDataPoint("Senior", "2026-01", 10.0/3, 40.1),
		matrix.NewDataPoint("Senior", "2026-02", a+b, 0),
		matrix.NewDataPoint(`Tax, "Advanced"`, "2026-01", 12.75, 7.3),
		matrix.NewDataPoint(`Tax, "Advanced"`, "2026-02", 1e-7, 33.333333333),
	})
}

// =============================================================================
// CSV
// =============================================================================

func TestCSV_RoundTripReproducesTotals(t *testing.T) {
	// GIVEN: a matrix with awkward floats
	m := awkwardMatrix()

	// WHEN: exported with analytics and parsed back
	out, err := export.Serialize(m, export.FormatCSV, export.Options{IncludeAnalytics: true})
	require.NoError(t, err)
	rows, err := export.ParseCSVString(out)
	require.NoError(t, err)

	// THEN: re-aggregated data rows match the totals
	points := export.DataPoints(rows)
	require.Len(t, points, 4)
	assert.Equal(t, m.DataPoints, points, "shortest float format round-trips exactly")

	totals := export.Reaggregate(points)
	assert.InDelta(t, m.TotalDemand, totals.Demand, matrix.Tolerance)
	assert.InDelta(t, m.TotalCapacity, totals.Capacity, matrix.Tolerance)
	assert.InDelta(t, m.TotalGap, totals.Gap, matrix.Tolerance)

	// And the TOTAL row agrees as well.
	last := rows[len(rows)-1]
	assert.Equal(t, export.RowTotal, last.Type)
	assert.InDelta(t, m.TotalDemand, last.DemandHours, matrix.Tolerance)
}

func TestCSV_Layout(t *testing.T) {
	m := awkwardMatrix()

	out, err := export.Serialize(m, export.FormatCSV, export.Options{IncludeAnalytics: true})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")

	assert.Equal(t, `"row_type","skill","month","month_label","demand_hours","capacity_hours","gap","utilization_percent"`, lines[0])
	assert.Equal(t, `"DATA","Senior","2026-02","Feb 2026",0.30000000000000004,0,-0.30000000000000004,0`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `"DATA","Tax, ""Advanced""","2026-01","Jan 2026",12.75,7.3,`))

	// 1 header + 4 data + 2 skill totals + 2 month totals + 1 total
	assert.Len(t, lines, 10)
	assert.True(t, strings.HasPrefix(lines[5], `"SKILL_TOTAL","Senior","",""`))
	assert.True(t, strings.HasPrefix(lines[7], `"MONTH_TOTAL","","2026-01","Jan 2026"`))
	assert.True(t, strings.HasPrefix(lines[9], `"TOTAL","","",""`))
}

func TestCSV_WithoutAnalyticsHasOnlyDataRows(t *testing.T) {
	out, err := export.Serialize(awkwardMatrix(), export.FormatCSV, export.Options{})
	require.NoError(t, err)

	rows, err := export.ParseCSVString(out)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestParseCSV_RejectsMalformed(t *testing.T) {
	_, err := export.ParseCSVString("skill,month\nSenior,2026-01\n")
	assert.ErrorIs(t, err, export.ErrMalformed)

	good, _ := export.Serialize(awkwardMatrix(), export.FormatCSV, export.Options{})
	bad := strings.Replace(good, "12.75", "twelve", 1)
	_, err = export.ParseCSVString(bad)
	assert.ErrorIs(t, err, export.ErrMalformed)
}

// =============================================================================
// JSON
// =============================================================================

func TestJSON_RoundTrip(t *testing.T) {
	m := awkwardMatrix()

	out, err := export.Serialize(m, export.FormatJSON, export.Options{IncludeAnalytics: true})
	require.NoError(t, err)
	assert.Contains(t, out, `"totalDemand"`)
	assert.Contains(t, out, `"analytics"`)

	doc, err := export.ParseJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, m, doc.Matrix)
	require.NotNil(t, doc.Analytics)
	assert.Len(t, doc.Analytics.BySkill, 2)

	totals := export.Reaggregate(doc.DataPoints)
	assert.InDelta(t, m.TotalDemand, totals.Demand, matrix.Tolerance)
	assert.InDelta(t, m.TotalGap, totals.Gap, matrix.Tolerance)
}

func TestJSON_EmptyFilteredMatrix(t *testing.T) {
	m := matrix.Filter(awkwardMatrix(), nil, matrix.MonthRange{Start: 0, End: 0})

	out, err := export.Serialize(m, export.FormatJSON, export.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `"dataPoints": []`)
	assert.NotContains(t, out, "analytics")
}

// =============================================================================
// FORMATS
// =============================================================================

func TestFormats(t *testing.T) {
	f, err := export.ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, f)

	_, err = export.ParseFormat("xlsx")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
	_, err = export.Serialize(awkwardMatrix(), "pdf", export.Options{})
	assert.ErrorIs(t, err, export.ErrUnknownFormat)

	assert.Equal(t, "capacity-matrix-2026-01.json", export.FileName(awkwardMatrix(), export.FormatJSON))
	assert.Equal(t, "application/json", export.FormatJSON.ContentType())
}

// =============================================================================
// PRINT TABLE
// =============================================================================

func TestPrintTable(t *testing.T) {
	skills := []matrix.SkillType{"Junior", "CPA"}
	months := matrix.MonthWindow("2026-01", 2)
	m := matrix.New(skills, months, []matrix.DataPoint{
		matrix.NewDataPoint("Junior", "2026-01", 10, 20),
		matrix.NewDataPoint("Junior", "2026-02", 30, 20),
		matrix.NewDataPoint("CPA", "2026-01", 5, 0),
	})

	tbl := export.PrintTable(m)

	assert.Equal(t, "Capacity Matrix: Jan 2026 to Feb 2026", tbl.Title)
	assert.Equal(t, []string{"Skill", "Jan 2026", "Feb 2026", "Total"}, tbl.Header)
	assert.Equal(t, []string{"Junior", "10.0 / 20.0", "30.0 / 20.0", "40.0 / 40.0"}, tbl.Rows[0])
	assert.Equal(t, []string{"CPA", "5.0 / 0.0", "-", "5.0 / 0.0"}, tbl.Rows[1])
	assert.Equal(t, []string{"Total", "15.0 / 20.0", "30.0 / 20.0", "45.0 / 40.0"}, tbl.Footer)
	assert.Contains(t, tbl.Summary, "gap -5.0h")
	assert.Contains(t, tbl.Summary, "peak 2026-02")

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteText(&buf))
	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "Capacity Matrix: Jan 2026 to Feb 2026\n\n"))
	assert.Contains(t, text, "Junior")
	assert.Contains(t, text, "45.0 / 40.0")

	rendered := tbl.Render()
	assert.Contains(t, rendered, "Jan 2026")
	assert.Contains(t, rendered, "30.0 / 20.0")
}
