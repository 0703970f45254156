package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/warp/capacity-engine/matrix"
)

// =============================================================================
// PRINT TABLE - Skills × months grid
// =============================================================================

// Table is a print-ready layout of a matrix. Each cell reads
// "demand / capacity"; the last column and the footer hold totals.
type Table struct {
	Title   string
	Header  []string
	Rows    [][]string
	Footer  []string
	Summary string
}

// PrintTable lays out m for printing.
func PrintTable(m matrix.Matrix) Table {
	a := matrix.Analyze(m)

	t := Table{Title: "Capacity Matrix"}
	if n := len(m.Months); n > 0 {
		t.Title = fmt.Sprintf("Capacity Matrix: %s to %s", m.Months[0].Label, m.Months[n-1].Label)
	}

	t.Header = append(t.Header, "Skill")
	for _, mb := range m.Months {
		t.Header = append(t.Header, mb.Label)
	}
	t.Header = append(t.Header, "Total")

	for i, s := range m.Skills {
		row := []string{string(s)}
		for _, mb := range m.Months {
			p, ok := m.Point(s, mb.Key)
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, cell(p.DemandHours, p.CapacityHours))
		}
		row = append(row, cell(a.BySkill[i].DemandHours, a.BySkill[i].CapacityHours))
		t.Rows = append(t.Rows, row)
	}

	t.Footer = append(t.Footer, "Total")
	for _, mo := range a.ByMonth {
		t.Footer = append(t.Footer, cell(mo.DemandHours, mo.CapacityHours))
	}
	t.Footer = append(t.Footer, cell(a.Totals.Demand, a.Totals.Capacity))

	t.Summary = fmt.Sprintf("Demand %sh, capacity %sh, gap %sh, utilization %s%%",
		hours(a.Totals.Demand), hours(a.Totals.Capacity), hours(a.Totals.Gap),
		hours(matrix.Utilization(a.Totals.Demand, a.Totals.Capacity)))
	if a.PeakMonth != "" {
		t.Summary += ", peak " + a.PeakMonth
	}
	return t
}

// WriteText writes the table as aligned plain text.
func (t Table) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s\n\n", t.Title); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	lines := append([][]string{t.Header}, t.Rows...)
	lines = append(lines, t.Footer)
	for _, line := range lines {
		if _, err := fmt.Fprintln(tw, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", t.Summary)
	return err
}

// Render draws the table with box borders for terminals.
func (t Table) Render() string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	body := lipgloss.NewStyle().Padding(0, 1)
	footerRow := len(t.Rows)

	grid := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Header...).
		Rows(append(append([][]string{}, t.Rows...), t.Footer)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow || row == footerRow {
				return header
			}
			return body
		})

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(t.Title),
		grid.Render(),
		t.Summary,
	)
}

func cell(demand, capacity float64) string {
	return hours(demand) + " / " + hours(capacity)
}

func hours(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}
