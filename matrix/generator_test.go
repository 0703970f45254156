package matrix_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
	"github.com/warp/capacity-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

var asOf = date(2026, time.January, 15)

func hours(h float64) practice.Hours { return practice.NewHours(h) }

// newPracticeStore seeds three skills, two clients and a mix of demand and
// capacity records for 2026.
func newPracticeStore() *memory.Memory {
	m := memory.New()
	m.SetSkills("Junior", "Senior", "CPA")
	m.PutClient(practice.Client{ID: "c1", Name: "Acme", LiaisonID: "s1", Active: true})
	m.PutClient(practice.Client{ID: "c2", Name: "Globex", LiaisonID: "s2", Active: true})

	m.PutRecurring(practice.RecurringTask{
		ID: "rt-monthly", ClientID: "c1", Name: "Bookkeeping",
		EstimatedHours: hours(5), RequiredSkills: []string{"Senior", "CPA"},
		Recurrence: practice.Recurrence{Type: practice.RecurMonthly, DayOfMonth: 10},
		StartDate:  date(2025, time.December, 1), Active: true,
	})
	m.PutRecurring(practice.RecurringTask{
		ID: "rt-quarterly", ClientID: "c2", Name: "Payroll review",
		EstimatedHours: hours(8), RequiredSkills: []string{"Junior"},
		Recurrence: practice.Recurrence{Type: practice.RecurQuarterly},
		StartDate:  date(2026, time.January, 20), Active: true,
	})
	m.PutRecurring(practice.RecurringTask{
		ID: "rt-inactive", ClientID: "c1", Name: "Old engagement",
		EstimatedHours: hours(100), RequiredSkills: []string{"Senior"},
		Recurrence: practice.Recurrence{Type: practice.RecurMonthly},
		StartDate:  date(2025, time.January, 1), Active: false,
	})

	m.AddAvailability(
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2026-01", AvailableHours: hours(100)},
		practice.Availability{Skill: "CPA", Month: "2026-02", AvailableHours: hours(40)},
		practice.Availability{StaffID: "s3", Skill: "Partner", Month: "2026-01", AvailableHours: hours(50)},
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2027-03", AvailableHours: hours(70)},
	)
	return m
}

// =============================================================================
// VIRTUAL MODE
// =============================================================================

func TestGenerate_Virtual(t *testing.T) {
	// GIVEN: a monthly Senior+CPA template, a quarterly Junior template and
	// an inactive template
	store := newPracticeStore()
	gen := matrix.NewGenerator(store, nil)

	// WHEN: generating the virtual forecast from Jan 2026
	m, err := gen.Generate(context.Background(), matrix.Request{Mode: matrix.ModeVirtual, AsOf: asOf})
	require.NoError(t, err)

	// THEN: dense 3 × 12 grid
	assert.Equal(t, []matrix.SkillType{"Junior", "Senior", "CPA"}, m.Skills)
	require.Len(t, m.Months, 12)
	assert.Equal(t, "2026-01", m.Months[0].Key)
	assert.Equal(t, "2026-12", m.Months[11].Key)
	assert.Len(t, m.DataPoints, 36)

	// Multi-skill template books full hours into both skills.
	senior, _ := m.Point("Senior", "2026-01")
	cpa, _ := m.Point("CPA", "2026-01")
	assert.Equal(t, 5.0, senior.DemandHours)
	assert.Equal(t, 5.0, cpa.DemandHours)
	assert.Equal(t, 100.0, senior.CapacityHours)
	assert.Equal(t, 95.0, senior.Gap)

	junior, _ := m.Point("Junior", "2026-04")
	assert.Equal(t, 8.0, junior.DemandHours)
	juniorFeb, _ := m.Point("Junior", "2026-02")
	assert.Zero(t, juniorFeb.DemandHours)

	// 5h × 12 months × 2 skills + 8h × 4 quarters; Partner capacity is ignored.
	assert.Equal(t, 152.0, m.TotalDemand)
	assert.Equal(t, 140.0, m.TotalCapacity)
	assert.Empty(t, matrix.DefaultValidator().Validate(*m))
}

func TestGenerate_ClientFilter(t *testing.T) {
	store := newPracticeStore()
	gen := matrix.NewGenerator(store, nil)

	m, err := gen.Generate(context.Background(), matrix.Request{
		Mode: matrix.ModeVirtual, AsOf: asOf, ClientIDs: []practice.ClientID{"c1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 120.0, m.TotalDemand)
	assert.Equal(t, 140.0, m.TotalCapacity, "capacity is not client-scoped")
}

// =============================================================================
// ACTUAL MODE
// =============================================================================

func TestGenerate_Actual(t *testing.T) {
	// GIVEN: concrete tasks and availability with exceptions
	store := newPracticeStore()
	store.PutTask(practice.Task{ID: "t1", ClientID: "c1", EstimatedHours: hours(6),
		RequiredSkills: []string{"Senior"}, Status: practice.StatusScheduled, DueDate: datePtr(2026, time.February, 3)})
	store.PutTask(practice.Task{ID: "t2", ClientID: "c1", EstimatedHours: hours(10),
		RequiredSkills: []string{"Senior"}, Status: practice.StatusCanceled, DueDate: datePtr(2026, time.February, 4)})
	store.PutTask(practice.Task{ID: "t3", ClientID: "c2", EstimatedHours: hours(7),
		RequiredSkills: []string{"Junior"}, Status: practice.StatusInProgress, DueDate: datePtr(2027, time.June, 1)})
	store.PutTask(practice.Task{ID: "t4", ClientID: "c2", EstimatedHours: hours(9),
		RequiredSkills: []string{"Junior"}, Status: practice.StatusUnscheduled})

	store.AddAvailability(
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2026-02", AvailableHours: hours(60)},
		practice.Availability{StaffID: "s1", Skill: "CPA", Month: "2026-02", AvailableHours: hours(40)},
	)
	store.AddException(
		practice.AvailabilityException{StaffID: "s1", Month: "2026-02", Kind: practice.ExceptionLeave, Hours: hours(20)},
		practice.AvailabilityException{StaffID: "s2", Skill: "Junior", Month: "2026-03", Kind: practice.ExceptionOverride, Hours: hours(60)},
	)

	gen := matrix.NewGenerator(store, nil)

	// WHEN
	m, err := gen.Generate(context.Background(), matrix.Request{Mode: matrix.ModeActual, AsOf: asOf})
	require.NoError(t, err)

	// THEN: only t1 counts toward demand
	assert.Equal(t, 6.0, m.TotalDemand)
	seniorFeb, _ := m.Point("Senior", "2026-02")
	assert.Equal(t, 6.0, seniorFeb.DemandHours)

	// Staff-wide leave is spread 60:40 over s1's February skills.
	assert.Equal(t, 48.0, seniorFeb.CapacityHours)
	cpaFeb, _ := m.Point("CPA", "2026-02")
	assert.Equal(t, 72.0, cpaFeb.CapacityHours, "32 for s1 plus 40 pooled")

	juniorMar, _ := m.Point("Junior", "2026-03")
	assert.Equal(t, 60.0, juniorMar.CapacityHours)
	assert.Equal(t, m.Skills, []matrix.SkillType{"Junior", "Senior", "CPA"})
	assert.Len(t, m.DataPoints, 36)
}

func TestGenerate_VirtualIgnoresExceptions(t *testing.T) {
	store := newPracticeStore()
	store.AddException(practice.AvailabilityException{StaffID: "s1", Skill: "Senior", Month: "2026-01",
		Kind: practice.ExceptionLeave, Hours: hours(100)})

	m, err := matrix.NewGenerator(store, nil).Generate(context.Background(),
		matrix.Request{Mode: matrix.ModeVirtual, AsOf: asOf})
	require.NoError(t, err)

	p, _ := m.Point("Senior", "2026-01")
	assert.Equal(t, 100.0, p.CapacityHours)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestGenerate_SourceFailure(t *testing.T) {
	store := newPracticeStore()
	down := errors.New("connection refused")
	store.Fail = down

	m, err := matrix.NewGenerator(store, nil).Generate(context.Background(),
		matrix.Request{Mode: matrix.ModeVirtual, AsOf: asOf})

	assert.Nil(t, m)
	require.Error(t, err)
	assert.True(t, practice.IsSourceError(err))
	assert.ErrorIs(t, err, down)

	var se *practice.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "tasks", se.Source)
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := matrix.NewGenerator(newPracticeStore(), nil).Generate(ctx,
		matrix.Request{Mode: matrix.ModeActual, AsOf: asOf})

	assert.Nil(t, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, practice.IsSourceError(err))
}

func TestGenerate_UnknownMode(t *testing.T) {
	_, err := matrix.NewGenerator(newPracticeStore(), nil).Generate(context.Background(),
		matrix.Request{Mode: "projected"})
	assert.Error(t, err)
}

// =============================================================================
// SKILL CATALOG
// =============================================================================

type flakySkills struct {
	names []string
	err   error
}

func (f *flakySkills) ListSkills(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

func TestSkillCatalog_FallsBackToLastKnown(t *testing.T) {
	// GIVEN: a store that has answered once
	store := &flakySkills{names: []string{" Senior", "CPA", "Senior", ""}}
	catalog := matrix.NewSkillCatalog(store, nil)
	ctx := context.Background()

	first := catalog.Load(ctx)
	assert.Equal(t, []matrix.SkillType{"Senior", "CPA"}, first)
	assert.NoError(t, catalog.LastError())

	// WHEN: the store goes down
	store.err = errors.New("timeout")
	second := catalog.Load(ctx)

	// THEN: the previous list is served and the error is remembered
	assert.Equal(t, first, second)
	assert.Error(t, catalog.LastError())
	assert.True(t, catalog.Contains("CPA"))
	assert.False(t, catalog.Contains("Junior"))
}

func TestSkillCatalog_EmptyWhenNeverLoaded(t *testing.T) {
	catalog := matrix.NewSkillCatalog(&flakySkills{err: errors.New("down")}, nil)
	assert.Empty(t, catalog.Load(context.Background()))
}

// =============================================================================
// RECURRENCE PROJECTION
// =============================================================================

func TestOccurrences(t *testing.T) {
	jan, dec := date(2026, time.January, 1), date(2026, time.December, 31)

	tests := []struct {
		name string
		rt   practice.RecurringTask
		from time.Time
		to   time.Time
		want []time.Time
	}{
		{
			name: "quarterly from an earlier start",
			rt: practice.RecurringTask{
				Recurrence: practice.Recurrence{Type: practice.RecurQuarterly},
				StartDate:  date(2025, time.February, 15),
			},
			from: jan, to: dec,
			want: []time.Time{
				date(2026, time.February, 15), date(2026, time.May, 15),
				date(2026, time.August, 15), date(2026, time.November, 15),
			},
		},
		{
			name: "biweekly",
			rt: practice.RecurringTask{
				Recurrence: practice.Recurrence{Type: practice.RecurWeekly, Interval: 2},
				StartDate:  date(2026, time.January, 5),
			},
			from: jan, to: date(2026, time.January, 31),
			want: []time.Time{date(2026, time.January, 5), date(2026, time.January, 19)},
		},
		{
			name: "day 31 clamps in short months",
			rt: practice.RecurringTask{
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly},
				StartDate:  date(2026, time.January, 31),
			},
			from: jan, to: date(2026, time.March, 31),
			want: []time.Time{
				date(2026, time.January, 31), date(2026, time.February, 28), date(2026, time.March, 31),
			},
		},
		{
			name: "annual anchored on month of year",
			rt: practice.RecurringTask{
				Recurrence: practice.Recurrence{Type: practice.RecurAnnually, MonthOfYear: time.April, DayOfMonth: 1},
				StartDate:  date(2025, time.June, 1),
			},
			from: jan, to: dec,
			want: []time.Time{date(2026, time.April, 1)},
		},
		{
			name: "end date stops occurrences",
			rt: practice.RecurringTask{
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly},
				StartDate:  date(2026, time.January, 10),
				EndDate:    datePtr(2026, time.March, 1),
			},
			from: jan, to: dec,
			want: []time.Time{date(2026, time.January, 10), date(2026, time.February, 10)},
		},
		{
			name: "starts after window",
			rt: practice.RecurringTask{
				Recurrence: practice.Recurrence{Type: practice.RecurMonthly},
				StartDate:  date(2027, time.January, 1),
			},
			from: jan, to: dec,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matrix.Occurrences(tt.rt, tt.from, tt.to))
		})
	}
}

// =============================================================================
// AVAILABILITY EXCEPTIONS
// =============================================================================

func TestApplyExceptions_OverrideBeforeLeave(t *testing.T) {
	avail := []practice.Availability{
		{StaffID: "s1", Skill: "Senior", Month: "2026-01", AvailableHours: hours(80)},
	}
	exceptions := []practice.AvailabilityException{
		{StaffID: "s1", Skill: "Senior", Month: "2026-01", Kind: practice.ExceptionLeave, Hours: hours(10)},
		{StaffID: "s1", Skill: "Senior", Month: "2026-01", Kind: practice.ExceptionOverride, Hours: hours(50)},
	}

	out := matrix.ApplyExceptions(avail, exceptions)

	require.Len(t, out, 1)
	assert.Equal(t, 40.0, out[0].AvailableHours.Float64())
	assert.Equal(t, 80.0, avail[0].AvailableHours.Float64(), "input untouched")
}

func TestApplyExceptions_FloorsAtZeroAndSkipsPooled(t *testing.T) {
	avail := []practice.Availability{
		{StaffID: "s1", Skill: "CPA", Month: "2026-01", AvailableHours: hours(10)},
		{Skill: "CPA", Month: "2026-01", AvailableHours: hours(30)},
	}
	exceptions := []practice.AvailabilityException{
		{StaffID: "s1", Skill: "CPA", Month: "2026-01", Kind: practice.ExceptionLeave, Hours: hours(25)},
		{Skill: "CPA", Month: "2026-01", Kind: practice.ExceptionLeave, Hours: hours(30)},
		{StaffID: "s9", Skill: "CPA", Month: "2026-01", Kind: practice.ExceptionLeave, Hours: hours(5)},
	}

	out := matrix.ApplyExceptions(avail, exceptions)

	require.Len(t, out, 2)
	assert.True(t, out[0].AvailableHours.IsZero())
	assert.Equal(t, 30.0, out[1].AvailableHours.Float64())
}

func TestApplyExceptions_StaffWideOnZeroTotalSplitsEqually(t *testing.T) {
	avail := []practice.Availability{
		{StaffID: "s1", Skill: "Junior", Month: "2026-01"},
		{StaffID: "s1", Skill: "Senior", Month: "2026-01"},
	}
	exceptions := []practice.AvailabilityException{
		{StaffID: "s1", Month: "2026-01", Kind: practice.ExceptionOverride, Hours: hours(40)},
	}

	out := matrix.ApplyExceptions(avail, exceptions)

	assert.Equal(t, 20.0, out[0].AvailableHours.Float64())
	assert.Equal(t, 20.0, out[1].AvailableHours.Float64())
}
