/*
Package export serializes capacity matrices for download and print.

PURPOSE:
  The dashboard's "Export" button produces CSV or JSON of the currently
  filtered matrix; "Print" produces a skills × months grid. Output is data
  and text, never a rendered document.

ROUND-TRIP CONTRACT:
  Parsing an export and re-aggregating its data rows reproduces the
  matrix totals within matrix.Tolerance. Floats are written with the
  shortest representation that parses back to the same value.

CSV LAYOUT:
  "row_type","skill","month","month_label",demand_hours,capacity_hours,gap,utilization_percent
  "DATA","Senior","2026-01","Jan 2026",5,100,95,5
  ...
  With analytics:
  "SKILL_TOTAL","Senior","","",60,1200,1140,5
  "MONTH_TOTAL","","2026-01","Jan 2026",13,100,87,13
  "TOTAL","","","",152,140,-12,108.57142857142857

  String fields are always quoted.

SEE ALSO:
  - table.go: Print layout
  - matrix/analytics.go: Summary rows
*/
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/capacity-engine/matrix"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for formats other than csv and json.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts "csv" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// FileName suggests a download name, e.g. capacity-matrix-2026-01.csv.
func FileName(m matrix.Matrix, f Format) string {
	suffix := "empty"
	if len(m.Months) > 0 {
		suffix = m.Months[0].Key
	}
	return fmt.Sprintf("capacity-matrix-%s.%s", suffix, f)
}

type Options struct {
	IncludeAnalytics bool
}

// Row types in CSV exports.
const (
	RowData       = "DATA"
	RowSkillTotal = "SKILL_TOTAL"
	RowMonthTotal = "MONTH_TOTAL"
	RowTotal      = "TOTAL"
)

var csvHeader = []string{
	"row_type", "skill", "month", "month_label",
	"demand_hours", "capacity_hours", "gap", "utilization_percent",
}

// Document is the JSON export.
type Document struct {
	matrix.Matrix
	Analytics *matrix.Analytics `json:"analytics,omitempty"`
}

// Serialize renders m in format.
func Serialize(m matrix.Matrix, format Format, opts Options) (string, error) {
	switch format {
	case FormatCSV:
		return serializeCSV(m, opts), nil
	case FormatJSON:
		return serializeJSON(m, opts)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func serializeJSON(m matrix.Matrix, opts Options) (string, error) {
	doc := Document{Matrix: m.Clone()}
	if doc.DataPoints == nil {
		doc.DataPoints = []matrix.DataPoint{}
	}
	if opts.IncludeAnalytics {
		a := matrix.Analyze(m)
		doc.Analytics = &a
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode matrix: %w", err)
	}
	return string(raw), nil
}

func serializeCSV(m matrix.Matrix, opts Options) string {
	var b strings.Builder
	for i, h := range csvHeader {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(h))
	}
	b.WriteByte('\n')

	labels := make(map[string]string, len(m.Months))
	for _, mb := range m.Months {
		labels[mb.Key] = mb.Label
	}

	for _, p := range m.DataPoints {
		writeRow(&b, RowData, string(p.SkillType), p.Month, labels[p.Month],
			p.DemandHours, p.CapacityHours, p.Gap, p.UtilizationPercent)
	}

	if opts.IncludeAnalytics {
		a := matrix.Analyze(m)
		for _, s := range a.BySkill {
			writeRow(&b, RowSkillTotal, string(s.SkillType), "", "",
				s.DemandHours, s.CapacityHours, s.Gap, s.UtilizationPercent)
		}
		for _, mo := range a.ByMonth {
			writeRow(&b, RowMonthTotal, "", mo.Month, mo.Label,
				mo.DemandHours, mo.CapacityHours, mo.Gap, mo.UtilizationPercent)
		}
		writeRow(&b, RowTotal, "", "", "",
			a.Totals.Demand, a.Totals.Capacity, a.Totals.Gap,
			matrix.Utilization(a.Totals.Demand, a.Totals.Capacity))
	}
	return b.String()
}

func writeRow(b *strings.Builder, rowType, skill, month, label string, demand, capacity, gap, util float64) {
	b.WriteString(quote(rowType))
	for _, s := range []string{skill, month, label} {
		b.WriteByte(',')
		b.WriteString(quote(s))
	}
	for _, f := range []float64{demand, capacity, gap, util} {
		b.WriteByte(',')
		b.WriteString(formatFloat(f))
	}
	b.WriteByte('\n')
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
