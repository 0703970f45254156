package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/clients"
	"github.com/warp/capacity-engine/export"
	"github.com/warp/capacity-engine/forecast"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
	"github.com/warp/capacity-engine/store/sqlite"
)

// matrixFlags are shared by the commands that build a matrix.
type matrixFlags struct {
	mode    string
	asOf    string
	clients []string
	skills  []string
	from    string
	to      string
	start   string
	end     string
}

func (f *matrixFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", string(matrix.ModeVirtual), "Forecast mode: virtual or actual")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "First month of the window, YYYY-MM (default: current month)")
	cmd.Flags().StringSliceVar(&f.clients, "clients", nil, "Only count demand from these client IDs")
	cmd.Flags().StringSliceVar(&f.skills, "skills", nil, "Only show these skills")
	cmd.Flags().StringVar(&f.from, "from", "", "First month to show, YYYY-MM")
	cmd.Flags().StringVar(&f.to, "to", "", "Last month to show, YYYY-MM")
	cmd.Flags().StringVar(&f.start, "start", "", "First month to show, as a 0-based index into the window")
	cmd.Flags().StringVar(&f.end, "end", "", "Last month to show, as a 0-based index into the window")
}

func (f *matrixFlags) request() (matrix.Request, error) {
	req := matrix.Request{Mode: matrix.ForecastMode(f.mode), AsOf: time.Now()}
	if !req.Mode.Valid() {
		return req, fmt.Errorf("mode must be virtual or actual, got %q", f.mode)
	}
	if f.asOf != "" {
		key, err := practice.ParseMonthKey(f.asOf)
		if err != nil {
			return req, err
		}
		req.AsOf = key.Start()
	}
	for _, key := range []string{f.from, f.to} {
		if key == "" {
			continue
		}
		if _, err := practice.ParseMonthKey(key); err != nil {
			return req, err
		}
	}
	if f.byIndex() {
		if f.from != "" || f.to != "" {
			return req, fmt.Errorf("use --from/--to or --start/--end, not both")
		}
		if _, err := matrix.ParseMonthRange(f.start, f.end, matrix.ForecastMonths); err != nil {
			return req, err
		}
	}
	for _, id := range f.clients {
		req.ClientIDs = append(req.ClientIDs, practice.ClientID(id))
	}
	return req, nil
}

func (f *matrixFlags) byIndex() bool { return f.start != "" || f.end != "" }

// apply narrows m to the selected skills and months. Flags were checked
// by request.
func (f *matrixFlags) apply(m matrix.Matrix) matrix.Matrix {
	if len(f.skills) == 0 && f.from == "" && f.to == "" && !f.byIndex() {
		return m
	}
	selected := matrix.AllSkills(m)
	if len(f.skills) > 0 {
		selected = selected[:0]
		for _, s := range f.skills {
			selected = append(selected, matrix.SkillType(s))
		}
	}
	if f.byIndex() {
		rng, _ := matrix.ParseMonthRange(f.start, f.end, len(m.Months))
		return matrix.Filter(m, selected, rng)
	}
	return matrix.FilterByMonthKeys(m, selected, f.from, f.to)
}

// =============================================================================
// ROOT
// =============================================================================

type rootOptions struct {
	dbPath  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "matrixctl",
		Short:         "Inspect and export the skill capacity matrix",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "capacity.db", "SQLite database path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newExportCmd(opts),
		newValidateCmd(opts),
		newPrintCmd(opts),
		newSummaryCmd(opts),
	)
	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// open returns a store for the database file. The file must exist so a
// typo does not silently create an empty database.
func (o *rootOptions) open() (*sqlite.Store, error) {
	if _, err := os.Stat(o.dbPath); err != nil {
		return nil, fmt.Errorf("database %s: %w", o.dbPath, err)
	}
	return sqlite.New(o.dbPath)
}

func (o *rootOptions) buildMatrix(ctx context.Context, cmd *cobra.Command, f *matrixFlags) (*forecast.Result, error) {
	req, err := f.request()
	if err != nil {
		return nil, err
	}

	store, err := o.open()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	logger := o.logger(cmd)
	svc := forecast.NewService(matrix.NewGenerator(store, logger), cache.New(cache.Options{Name: "matrixctl", Logger: logger}), forecast.Options{Logger: logger})
	return svc.Matrix(ctx, req)
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		f         matrixFlags
		format    string
		output    string
		analytics bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the matrix as CSV or JSON",
		Long: `Export the capacity matrix.

CSV exports carry one DATA row per skill and month. With --analytics they
also carry SKILL_TOTAL, MONTH_TOTAL and TOTAL rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			res, err := opts.buildMatrix(cmd.Context(), cmd, &f)
			if err != nil {
				return err
			}

			body, err := export.Serialize(f.apply(res.Matrix), outFormat, export.Options{IncludeAnalytics: analytics})
			if err != nil {
				return err
			}
			if output == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			return os.WriteFile(output, []byte(body), 0o644)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "Output format: csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&analytics, "analytics", false, "Include summary rows")
	return cmd
}

// =============================================================================
// VALIDATE
// =============================================================================

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		f    matrixFlags
		file string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a generated matrix or an exported file",
		Long: `Validate checks structural consistency: every skill has a point for
every month, hours are non-negative, gap and utilization match demand
and capacity, and totals match the points.

With --file it checks an export instead. JSON exports are validated in
full; CSV exports are checked by re-aggregating the DATA rows against the
TOTAL row, when present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var issues []string
			var err error
			if file != "" {
				issues, err = validateFile(file)
			} else {
				var res *forecast.Result
				res, err = opts.buildMatrix(cmd.Context(), cmd, &f)
				if res != nil {
					issues = matrix.IssueMessages(res.Issues)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "OK: matrix is consistent")
				return nil
			}
			for _, msg := range issues {
				fmt.Fprintf(out, "- %s\n", msg)
			}
			return fmt.Errorf("%d validation issue(s)", len(issues))
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "Validate an exported .csv or .json file")
	return cmd
}

func validateFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		doc, err := export.ParseJSON(data)
		if err != nil {
			return nil, err
		}
		v := matrix.Validator{ExpectedMonths: len(doc.Months)}
		return matrix.IssueMessages(v.Validate(doc.Matrix)), nil
	}

	rows, err := export.ParseCSVString(string(data))
	if err != nil {
		return nil, err
	}
	got := export.Reaggregate(export.DataPoints(rows))

	var issues []string
	for _, r := range rows {
		if r.Type != export.RowTotal {
			continue
		}
		for _, c := range []struct {
			name      string
			want, got float64
		}{
			{"demand", r.DemandHours, got.Demand},
			{"capacity", r.CapacityHours, got.Capacity},
			{"gap", r.Gap, got.Gap},
		} {
			if diff := c.want - c.got; diff > matrix.Tolerance || diff < -matrix.Tolerance {
				issues = append(issues, fmt.Sprintf("total %s %.2f does not match data rows %.2f", c.name, c.want, c.got))
			}
		}
	}
	return issues, nil
}

// =============================================================================
// PRINT
// =============================================================================

func newPrintCmd(opts *rootOptions) *cobra.Command {
	var (
		f     matrixFlags
		plain bool
		asRaw bool
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the skills × months grid",
		Long: `Print shows demand / capacity per skill and month with row and column
totals. Output is drawn with borders on a terminal and as aligned plain
text otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.buildMatrix(cmd.Context(), cmd, &f)
			if err != nil {
				return err
			}

			table := export.PrintTable(f.apply(res.Matrix))
			out := cmd.OutOrStdout()
			switch {
			case asRaw:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			case plain || !isTerminal(out):
				return table.WriteText(out)
			default:
				_, err := fmt.Fprintln(out, table.Render())
				return err
			}
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain text even on a terminal")
	cmd.Flags().BoolVar(&asRaw, "json", false, "Print the table rows as JSON")
	return cmd
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// =============================================================================
// SUMMARY
// =============================================================================

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var (
		liaison  bool
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "summary <client-id>",
		Short: "Show a client task summary",
		Long: `Summary aggregates a client's recurring templates and task instances:
counts by status and hours by skill, category and priority.

With --liaison the argument is a staff ID and the summary covers every
client that staff member is liaison for.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := dateRange(from, to)
			if err != nil {
				return err
			}

			store, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			agg := clients.NewAggregator(store, nil, 0, opts.logger(cmd))

			var v any
			if liaison {
				v, err = agg.SummarizeLiaison(cmd.Context(), practice.StaffID(args[0]), rng)
			} else {
				v, err = agg.Summarize(cmd.Context(), practice.ClientID(args[0]), rng)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().BoolVar(&liaison, "liaison", false, "Treat the argument as a liaison staff ID")
	cmd.Flags().StringVar(&from, "from", "", "Only tasks due on or after this date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Only tasks due on or before this date, YYYY-MM-DD")
	return cmd
}

func dateRange(from, to string) (*practice.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	var rng practice.DateRange
	for _, p := range []struct {
		raw string
		dst *time.Time
	}{{from, &rng.Start}, {to, &rng.End}} {
		if p.raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", p.raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not YYYY-MM-DD", p.raw)
		}
		*p.dst = t
	}
	return &rng, nil
}
