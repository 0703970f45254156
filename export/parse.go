package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/warp/capacity-engine/matrix"
)

// ErrMalformed is returned when an export cannot be parsed back.
var ErrMalformed = errors.New("malformed export")

// Row is one parsed CSV row.
type Row struct {
	Type               string
	SkillType          matrix.SkillType
	Month              string
	MonthLabel         string
	DemandHours        float64
	CapacityHours      float64
	Gap                float64
	UtilizationPercent float64
}

// ParseCSV reads a CSV export. Summary rows are returned too; use
// DataPoints to keep only the per-cell rows.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	for i, h := range csvHeader {
		if header[i] != h {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrMalformed, i+1, header[i], h)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		row := Row{Type: rec[0], SkillType: matrix.SkillType(rec[1]), Month: rec[2], MonthLabel: rec[3]}
		nums := []*float64{&row.DemandHours, &row.CapacityHours, &row.Gap, &row.UtilizationPercent}
		for i, dst := range nums {
			f, err := strconv.ParseFloat(rec[4+i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %v", ErrMalformed, line, csvHeader[4+i], err)
			}
			*dst = f
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseCSVString is ParseCSV over a string.
func ParseCSVString(s string) ([]Row, error) {
	return ParseCSV(strings.NewReader(s))
}

// DataPoints keeps the DATA rows as matrix points.
func DataPoints(rows []Row) []matrix.DataPoint {
	points := make([]matrix.DataPoint, 0, len(rows))
	for _, r := range rows {
		if r.Type != RowData {
			continue
		}
		points = append(points, matrix.DataPoint{
			SkillType:          r.SkillType,
			Month:              r.Month,
			DemandHours:        r.DemandHours,
			CapacityHours:      r.CapacityHours,
			Gap:                r.Gap,
			UtilizationPercent: r.UtilizationPercent,
		})
	}
	return points
}

// ParseJSON reads a JSON export.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &doc, nil
}

// Reaggregate totals parsed data points.
func Reaggregate(points []matrix.DataPoint) matrix.Totals {
	return matrix.SumPoints(points)
}
