/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  practice data for demos. Each scenario creates skills, staff, clients,
  recurring templates, task instances and availability that show a
  specific capacity picture.

AVAILABLE SCENARIOS:
  balanced-practice: Demand roughly matches capacity all year
  tax-season:        Annual CPA returns overload spring months
  staff-leave:       Leave and overrides; compare virtual vs actual

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Build the scenario relative to the current month
  3. Write records through the store
  4. Clear both caches and publish forecast.changed

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "tax-season"}

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' slice with ID, name, description
  2. Create builder function: xxxScenario(anchor) seed
  3. Add case to buildScenario

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/capacity-engine/events"
	"github.com/warp/capacity-engine/practice"
	"github.com/warp/capacity-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "balanced-practice",
		Name:        "Balanced Practice",
		Description: "Three clients, three skills, demand close to capacity all year",
	},
	{
		ID:          "tax-season",
		Name:        "Tax Season",
		Description: "Annual CPA returns pile up in March and April and exceed capacity",
	},
	{
		ID:          "staff-leave",
		Name:        "Staff Leave",
		Description: "Leave and capacity overrides that only show in the actual forecast",
	},
}

// seed is everything a scenario writes.
type seed struct {
	skills       []string
	staff        []practice.Staff
	clients      []practice.Client
	recurring    []practice.RecurringTask
	tasks        []practice.Task
	availability []practice.Availability
	exceptions   []practice.AvailabilityException
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	s, err := buildScenario(req.ScenarioID, practice.MonthOf(h.Now()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := applySeed(ctx, h.Store, s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.afterBulkChange(ctx)

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.afterBulkChange(r.Context())

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// afterBulkChange drops every cached result. The forecast.changed event
// reaches other instances through the relay and schedules a refresh.
func (h *Handler) afterBulkChange(ctx context.Context) {
	h.Forecast.Cache().Clear()
	if h.Summaries != nil {
		h.Summaries.Clear()
	}
	h.publish(ctx, events.Event{Topic: events.TopicForecastChanged})
	h.publish(ctx, events.Event{Topic: events.TopicClientChanged})
}

func buildScenario(id string, anchor practice.MonthKey) (seed, error) {
	switch id {
	case "balanced-practice":
		return balancedScenario(anchor), nil
	case "tax-season":
		return taxSeasonScenario(anchor), nil
	case "staff-leave":
		return staffLeaveScenario(anchor), nil
	}
	return seed{}, fmt.Errorf("%w: scenario %q", errBadRequest, id)
}

func applySeed(ctx context.Context, store *sqlite.Store, s seed) error {
	if err := store.SetSkills(ctx, s.skills...); err != nil {
		return fmt.Errorf("skills: %w", err)
	}
	for _, st := range s.staff {
		if err := store.PutStaff(ctx, st); err != nil {
			return fmt.Errorf("staff %s: %w", st.ID, err)
		}
	}
	for _, c := range s.clients {
		if err := store.PutClient(ctx, c); err != nil {
			return fmt.Errorf("client %s: %w", c.ID, err)
		}
	}
	for _, rt := range s.recurring {
		if err := store.PutRecurring(ctx, rt); err != nil {
			return fmt.Errorf("recurring task %s: %w", rt.ID, err)
		}
	}
	for _, t := range s.tasks {
		if err := store.PutTask(ctx, t); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	if err := store.AddAvailability(ctx, s.availability...); err != nil {
		return fmt.Errorf("availability: %w", err)
	}
	for _, e := range s.exceptions {
		if err := store.AddException(ctx, e); err != nil {
			return fmt.Errorf("exception %s: %w", e.ID, err)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO: BALANCED PRACTICE
// =============================================================================

func balancedScenario(anchor practice.MonthKey) seed {
	start := anchor.AddMonths(-6).Start()
	due := anchor.Start().AddDate(0, 0, 14)

	s := seed{
		skills: []string{"Junior", "Senior", "CPA"},
		staff: []practice.Staff{
			{ID: "s1", Name: "Dana Reyes", Skills: []string{"Senior", "CPA"}},
			{ID: "s2", Name: "Sam Okafor", Skills: []string{"Junior"}},
			{ID: "s3", Name: "Lee Park", Skills: []string{"Junior", "Senior"}},
		},
		clients: []practice.Client{
			{ID: "abc123", Name: "Acme Corp", LiaisonID: "s1", Active: true},
			{ID: "xyz789", Name: "Globex", LiaisonID: "s1", Active: true},
			{ID: "def456", Name: "Initech", LiaisonID: "s3", Active: true},
		},
		recurring: []practice.RecurringTask{
			{
				ID: "rt-acme-books", ClientID: "abc123", Name: "Monthly bookkeeping",
				EstimatedHours: practice.NewHours(30), RequiredSkills: []string{"Junior"},
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly, DayOfMonth: 10},
				StartDate:  start, Active: true, Category: "bookkeeping", Priority: practice.PriorityMedium,
			},
			{
				ID: "rt-acme-review", ClientID: "abc123", Name: "Quarterly review",
				EstimatedHours: practice.NewHours(36), RequiredSkills: []string{"Senior"},
				Recurrence: practice.Recurrence{Type: practice.RecurQuarterly, DayOfMonth: 20},
				StartDate:  start, Active: true, Category: "advisory", Priority: practice.PriorityHigh,
			},
			{
				ID: "rt-globex-payroll", ClientID: "xyz789", Name: "Payroll",
				EstimatedHours: practice.NewHours(24), RequiredSkills: []string{"Junior"},
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly, DayOfMonth: 25},
				StartDate:  start, Active: true, Category: "payroll", Priority: practice.PriorityMedium,
			},
			{
				ID: "rt-globex-close", ClientID: "xyz789", Name: "Month-end close",
				EstimatedHours: practice.NewHours(20), RequiredSkills: []string{"Senior"},
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly, DayOfMonth: 28},
				StartDate:  start, Active: true, Category: "bookkeeping", Priority: practice.PriorityHigh,
			},
			{
				ID: "rt-initech-filing", ClientID: "def456", Name: "Sales tax filing",
				EstimatedHours: practice.NewHours(24), RequiredSkills: []string{"CPA"},
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly, DayOfMonth: 15},
				StartDate:  start, Active: true, Category: "tax", Priority: practice.PriorityUrgent,
			},
		},
		tasks: []practice.Task{
			{ID: "t-acme-1", ClientID: "abc123", TemplateID: "rt-acme-books", Name: "Bookkeeping", EstimatedHours: practice.NewHours(30), RequiredSkills: []string{"Junior"}, Status: practice.StatusCompleted, DueDate: &due, Category: "bookkeeping", Priority: practice.PriorityMedium},
			{ID: "t-acme-2", ClientID: "abc123", Name: "Audit prep", EstimatedHours: practice.NewHours(16), RequiredSkills: []string{"Senior"}, Status: practice.StatusInProgress, DueDate: &due, Category: "advisory", Priority: practice.PriorityHigh},
			{ID: "t-globex-1", ClientID: "xyz789", TemplateID: "rt-globex-payroll", Name: "Payroll", EstimatedHours: practice.NewHours(24), RequiredSkills: []string{"Junior"}, Status: practice.StatusScheduled, DueDate: &due, Category: "payroll", Priority: practice.PriorityMedium},
			{ID: "t-initech-1", ClientID: "def456", TemplateID: "rt-initech-filing", Name: "Sales tax filing", EstimatedHours: practice.NewHours(24), RequiredSkills: []string{"CPA"}, Status: practice.StatusScheduled, DueDate: &due, Category: "tax", Priority: practice.PriorityUrgent},
		},
	}

	nominal := []struct {
		staff practice.StaffID
		skill string
		hours float64
	}{
		{"s1", "Senior", 40}, {"s1", "CPA", 30},
		{"s2", "Junior", 40},
		{"s3", "Junior", 20}, {"s3", "Senior", 30},
	}
	for i := 0; i < 12; i++ {
		month := anchor.AddMonths(i)
		for _, n := range nominal {
			s.availability = append(s.availability, practice.Availability{
				StaffID: n.staff, Skill: n.skill, Month: month, AvailableHours: practice.NewHours(n.hours),
			})
		}
	}
	return s
}

// =============================================================================
// SCENARIO: TAX SEASON
// =============================================================================

func taxSeasonScenario(anchor practice.MonthKey) seed {
	s := balancedScenario(anchor)
	start := anchor.AddMonths(-12).Start()

	returns := []struct {
		id     practice.TaskID
		client practice.ClientID
		month  time.Month
		hours  float64
	}{
		{"rt-acme-return", "abc123", time.March, 40},
		{"rt-globex-return", "xyz789", time.March, 32},
		{"rt-initech-return", "def456", time.April, 48},
	}
	for _, r := range returns {
		s.recurring = append(s.recurring, practice.RecurringTask{
			ID: r.id, ClientID: r.client, Name: "Annual tax return",
			EstimatedHours: practice.NewHours(r.hours), RequiredSkills: []string{"CPA"},
			Recurrence: practice.Recurrence{Type: practice.RecurAnnually, MonthOfYear: r.month, DayOfMonth: 15},
			StartDate:  start, Active: true, Category: "tax", Priority: practice.PriorityUrgent,
		})
	}
	return s
}

// =============================================================================
// SCENARIO: STAFF LEAVE
// =============================================================================

func staffLeaveScenario(anchor practice.MonthKey) seed {
	s := balancedScenario(anchor)
	s.exceptions = []practice.AvailabilityException{
		{ID: "ex-s1-vacation", StaffID: "s1", Month: anchor.AddMonths(1), Kind: practice.ExceptionLeave, Hours: practice.NewHours(35), Reason: "Vacation"},
		{ID: "ex-s2-parental", StaffID: "s2", Skill: "Junior", Month: anchor.AddMonths(2), Kind: practice.ExceptionOverride, Hours: practice.NewHours(0), Reason: "Parental leave"},
		{ID: "ex-s2-return", StaffID: "s2", Skill: "Junior", Month: anchor.AddMonths(3), Kind: practice.ExceptionOverride, Hours: practice.NewHours(20), Reason: "Phased return"},
	}
	return s
}
