/*
generator.go - Builds a capacity matrix from practice data

PURPOSE:
  Produces the dense skill × month grid for a forecast window:
  - Months: 12 consecutive buckets starting at AsOf's month
  - Skills: the current dynamic skill list
  - Demand: hours of tasks requiring each skill, per month
  - Capacity: staff hours available for each skill, per month

FORECAST MODES:
  virtual: demand = active recurring templates expanded over the window
           capacity = nominal availability
  actual:  demand = task instances due in the window (canceled excluded)
           capacity = availability with leave/override exceptions applied

  Both modes produce the same shape.

DEMAND ATTRIBUTION:
  A task requiring several skills books its full estimated hours into
  every listed skill. Skills missing from the skill list are ignored.

FAILURE:
  All-or-nothing. Any source failure returns a *practice.SourceError and
  no matrix. Cancellation returns ctx.Err(). The generator holds no state
  between calls besides the skill catalog's fallback list.

SEE ALSO:
  - projection.go: Recurring template expansion
  - capacity.go: Exception handling
  - forecast/service.go: Caches generated matrices
*/
package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/capacity-engine/practice"
)

// Request describes which matrix to build.
type Request struct {
	Mode      ForecastMode
	AsOf      time.Time
	ClientIDs []practice.ClientID
}

// Generator builds matrices from practice sources.
type Generator struct {
	Tasks  practice.TaskSource
	Staff  practice.StaffSource
	Skills *SkillCatalog
	Logger *slog.Logger
}

// NewGenerator wires a generator to a combined source.
func NewGenerator(src practice.Source, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		Tasks:  src,
		Staff:  src,
		Skills: NewSkillCatalog(src, logger),
		Logger: logger.With("component", "generator"),
	}
}

// Generate builds the matrix for req.
func (g *Generator) Generate(ctx context.Context, req Request) (*Matrix, error) {
	m, _, err := g.GenerateWithWarnings(ctx, req)
	return m, err
}

// GenerateWithWarnings is Generate plus warning issues for degraded inputs.
// A skill store failure yields a skills_fallback warning and a matrix built
// from the last known skill list.
func (g *Generator) GenerateWithWarnings(ctx context.Context, req Request) (*Matrix, []Issue, error) {
	if !req.Mode.Valid() {
		return nil, nil, fmt.Errorf("unknown forecast mode %q", req.Mode)
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	first := practice.MonthOf(asOf)
	last := first.AddMonths(ForecastMonths - 1)
	months := MonthWindow(first, ForecastMonths)

	var warnings []Issue
	skills, skillsErr := g.Skills.Fetch(ctx)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if skillsErr != nil {
		warnings = append(warnings, Issue{
			Code:    IssueSkillsFallback,
			Message: fmt.Sprintf("skill store unavailable, using %d last known skills: %v", len(skills), skillsErr),
			Warning: true,
		})
	}

	demand, err := g.demand(ctx, req, first, last)
	if err != nil {
		return nil, nil, err
	}

	capacity, err := g.capacity(ctx, req.Mode, first, last)
	if err != nil {
		return nil, nil, err
	}

	known := make(map[SkillType]bool, len(skills))
	for _, s := range skills {
		known[s] = true
	}
	g.logUnmapped(demand, known, "demand")
	g.logUnmapped(capacity, known, "capacity")

	points := make([]DataPoint, 0, len(skills)*len(months))
	for _, s := range skills {
		for _, mb := range months {
			k := cellKey{skill: s, month: mb.Key}
			points = append(points, NewDataPoint(s, mb.Key, demand[k].Float64(), capacity[k].Float64()))
		}
	}

	m := New(skills, months, points)

	g.Logger.Debug("matrix generated",
		"mode", req.Mode,
		"first_month", first,
		"clients", len(req.ClientIDs),
		"skills", len(skills),
		"total_demand", m.TotalDemand,
		"total_capacity", m.TotalCapacity,
	)
	return &m, warnings, nil
}

// demand returns hours per cell for the window.
func (g *Generator) demand(ctx context.Context, req Request, first, last practice.MonthKey) (map[cellKey]practice.Hours, error) {
	window := practice.MonthRange(first, last)
	cells := make(map[cellKey]practice.Hours)

	book := func(skills []string, at time.Time, h practice.Hours) {
		month := string(practice.MonthOf(at))
		for _, s := range NormalizeSkills(skills) {
			k := cellKey{skill: s, month: month}
			cells[k] = cells[k].Add(h.ClampZero())
		}
	}

	switch req.Mode {
	case ModeVirtual:
		templates, err := g.Tasks.RecurringTasks(ctx, practice.TaskQuery{
			ClientIDs:  req.ClientIDs,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, practice.WrapSource("tasks", "recurring_tasks", err)
		}
		for _, rt := range templates {
			for _, at := range Occurrences(rt, window.Start, window.End) {
				book(rt.RequiredSkills, at, rt.EstimatedHours)
			}
		}

	case ModeActual:
		tasks, err := g.Tasks.TaskInstances(ctx, practice.TaskQuery{
			ClientIDs: req.ClientIDs,
			DueWithin: &window,
		})
		if err != nil {
			return nil, practice.WrapSource("tasks", "task_instances", err)
		}
		for _, t := range tasks {
			if t.Status == practice.StatusCanceled || t.DueDate == nil {
				continue
			}
			book(t.RequiredSkills, *t.DueDate, t.EstimatedHours)
		}
	}

	return cells, ctx.Err()
}

// capacity returns available hours per cell for the window.
func (g *Generator) capacity(ctx context.Context, mode ForecastMode, first, last practice.MonthKey) (map[cellKey]practice.Hours, error) {
	avail, err := g.Staff.Availability(ctx, first, last)
	if err != nil {
		return nil, practice.WrapSource("staff", "availability", err)
	}

	if mode == ModeActual {
		exceptions, err := g.Staff.AvailabilityExceptions(ctx, first, last)
		if err != nil {
			return nil, practice.WrapSource("staff", "availability_exceptions", err)
		}
		avail = ApplyExceptions(avail, exceptions)
	}

	return capacityCells(avail), ctx.Err()
}

func (g *Generator) logUnmapped(cells map[cellKey]practice.Hours, known map[SkillType]bool, kind string) {
	unmapped := make(map[SkillType]bool)
	for k, h := range cells {
		if !known[k.skill] && !h.IsZero() {
			unmapped[k.skill] = true
		}
	}
	for s := range unmapped {
		g.Logger.Debug("hours for unknown skill ignored", "skill", s, "kind", kind)
	}
}
