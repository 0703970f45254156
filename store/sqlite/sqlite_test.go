package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
	"github.com/warp/capacity-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

// =============================================================================
// SKILLS / CLIENTS / STAFF
// =============================================================================

func TestSkills_KeepInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSkills(ctx, "Senior", "Junior"))
	require.NoError(t, store.AddSkill(ctx, "CPA"))
	require.NoError(t, store.AddSkill(ctx, "Junior"))

	skills, err := store.ListSkills(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Senior", "Junior", "CPA"}, skills)

	err = store.AddSkill(ctx, "  ")
	assert.True(t, practice.IsClientError(err))
}

func TestSkills_EmptyListIsNotNil(t *testing.T) {
	skills, err := newTestStore(t).ListSkills(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, skills)
	assert.Empty(t, skills)
}

func TestClients_UpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutClient(ctx, practice.Client{ID: "xyz789", Name: "Globex", LiaisonID: "s1", Active: true}))
	require.NoError(t, store.PutClient(ctx, practice.Client{ID: "abc123", Name: "Acme", LiaisonID: "s1", Active: true}))
	require.NoError(t, store.PutClient(ctx, practice.Client{ID: "abc123", Name: "Acme Corp", LiaisonID: "s1", Active: false}))

	c, err := store.GetClient(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", c.Name)
	assert.False(t, c.Active)

	_, err = store.GetClient(ctx, "nope")
	assert.ErrorIs(t, err, practice.ErrClientNotFound)

	byLiaison, err := store.ClientsByLiaison(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, byLiaison, 2)
	assert.Equal(t, practice.ClientID("abc123"), byLiaison[0].ID)

	all, err := store.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStaff_SkillsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutStaff(ctx, practice.Staff{ID: "s1", Name: "Dana", Skills: []string{"Senior", "CPA"}}))

	st, err := store.GetStaff(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Senior", "CPA"}, st.Skills)

	_, err = store.GetStaff(ctx, "s2")
	assert.ErrorIs(t, err, practice.ErrStaffNotFound)

	all, err := store.ListStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// TASKS
// =============================================================================

func TestRecurringTasks_RoundTripAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: two templates, one inactive
	require.NoError(t, store.PutRecurring(ctx, practice.RecurringTask{
		ID:             "rt-1",
		ClientID:       "abc123",
		Name:           "Bookkeeping",
		EstimatedHours: practice.NewHours(2.5),
		RequiredSkills: []string{"Junior"},
		Recurrence:     practice.Recurrence{Type: practice.RecurQuarterly, Interval: 1, DayOfMonth: 31, MonthOfYear: time.March},
		StartDate:      date(2025, time.March, 31),
		EndDate:        datePtr(2027, time.December, 31),
		DueDate:        datePtr(2026, time.March, 31),
		Active:         true,
		Category:       "bookkeeping",
		Priority:       practice.PriorityHigh,
	}))
	require.NoError(t, store.PutRecurring(ctx, practice.RecurringTask{
		ID: "rt-2", ClientID: "xyz789", EstimatedHours: practice.NewHours(8),
		RequiredSkills: []string{"Senior"}, Recurrence: practice.Recurrence{Type: practice.RecurAnnually},
		StartDate: date(2024, time.April, 15), Active: false,
	}))

	// WHEN: reading everything
	all, err := store.RecurringTasks(ctx, practice.TaskQuery{})
	require.NoError(t, err)

	// THEN: fields survive the round trip
	require.Len(t, all, 2)
	rt := all[0]
	assert.Equal(t, "2.5", rt.EstimatedHours.String())
	assert.Equal(t, []string{"Junior"}, rt.RequiredSkills)
	assert.Equal(t, practice.RecurQuarterly, rt.Recurrence.Type)
	assert.Equal(t, time.March, rt.Recurrence.MonthOfYear)
	assert.Equal(t, date(2025, time.March, 31), rt.StartDate)
	require.NotNil(t, rt.EndDate)
	assert.Equal(t, date(2027, time.December, 31), *rt.EndDate)
	assert.Nil(t, all[1].EndDate)

	active, err := store.RecurringTasks(ctx, practice.TaskQuery{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	bySkill, err := store.RecurringTasks(ctx, practice.TaskQuery{Skill: "Senior"})
	require.NoError(t, err)
	require.Len(t, bySkill, 1)
	assert.Equal(t, practice.TaskID("rt-2"), bySkill[0].ID)

	due, err := store.RecurringTasks(ctx, practice.TaskQuery{DueWithin: &practice.DateRange{Start: date(2026, time.March, 1), End: date(2026, time.March, 31)}})
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestTaskInstances_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tasks := []practice.Task{
		{ID: "t1", ClientID: "abc123", EstimatedHours: practice.NewHours(3), RequiredSkills: []string{"Junior"}, Status: practice.StatusCompleted, DueDate: datePtr(2026, time.January, 10)},
		{ID: "t2", ClientID: "abc123", EstimatedHours: practice.NewHours(5), RequiredSkills: []string{"Senior"}, Status: practice.StatusScheduled, DueDate: datePtr(2026, time.February, 28)},
		{ID: "t3", ClientID: "xyz789", EstimatedHours: practice.NewHours(1), RequiredSkills: []string{"Junior"}},
	}
	for _, task := range tasks {
		require.NoError(t, store.PutTask(ctx, task))
	}

	all, err := store.TaskInstances(ctx, practice.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, practice.StatusUnscheduled, all[2].Status, "empty status defaults to unscheduled")
	assert.Nil(t, all[2].DueDate)

	byClient, err := store.TaskInstances(ctx, practice.TaskQuery{ClientIDs: []practice.ClientID{"abc123"}, Statuses: []practice.TaskStatus{practice.StatusScheduled}})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, practice.TaskID("t2"), byClient[0].ID)

	inJan, err := store.TaskInstances(ctx, practice.TaskQuery{DueWithin: &practice.DateRange{Start: date(2026, time.January, 1), End: date(2026, time.January, 31)}})
	require.NoError(t, err)
	require.Len(t, inJan, 1)
	assert.Equal(t, practice.TaskID("t1"), inJan[0].ID)
}

func TestTaskInstances_DueDateStoredAsUTCDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: a task due 1 Feb 01:00 at UTC+3, which is still 31 Jan in UTC
	east := time.FixedZone("UTC+3", 3*60*60)
	due := time.Date(2026, time.February, 1, 1, 0, 0, 0, east)
	require.NoError(t, store.PutTask(ctx, practice.Task{ID: "t1", ClientID: "abc123", EstimatedHours: practice.NewHours(2), DueDate: &due}))

	// WHEN: reading it back and querying January
	all, err := store.TaskInstances(ctx, practice.TaskQuery{})
	require.NoError(t, err)
	inJan, err := store.TaskInstances(ctx, practice.TaskQuery{DueWithin: &practice.DateRange{Start: date(2026, time.January, 1), End: date(2026, time.January, 31)}})
	require.NoError(t, err)

	// THEN: it lands in the same month practice.MonthOf assigns
	require.Len(t, all, 1)
	require.NotNil(t, all[0].DueDate)
	assert.Equal(t, practice.MonthOf(due), practice.MonthOf(*all[0].DueDate))
	assert.Equal(t, practice.MonthKey("2026-01"), practice.MonthOf(*all[0].DueDate))
	assert.Len(t, inJan, 1)
}

func TestPutTask_RejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.PutTask(ctx, practice.Task{ID: "t1", ClientID: "abc123", Status: "lost"})
	assert.ErrorIs(t, err, practice.ErrInvalidRecord)

	err = store.PutTask(ctx, practice.Task{ID: "t1", ClientID: "abc123", EstimatedHours: practice.NewHours(-1)})
	assert.ErrorIs(t, err, practice.ErrInvalidRecord)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestAvailability_RangeAndUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddAvailability(ctx,
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2026-01", AvailableHours: practice.NewHours(100)},
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2026-02", AvailableHours: practice.NewHours(100)},
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2027-01", AvailableHours: practice.NewHours(100)},
	))
	require.NoError(t, store.AddAvailability(ctx,
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2026-01", AvailableHours: practice.NewHours(80.5)},
	))

	got, err := store.Availability(ctx, "2026-01", "2026-12")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "80.5", got[0].AvailableHours.String())

	err = store.AddAvailability(ctx, practice.Availability{StaffID: "s1", Skill: "Senior", Month: "Jan"})
	assert.ErrorIs(t, err, practice.ErrInvalidMonth)
}

func TestAvailabilityExceptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddException(ctx, practice.AvailabilityException{
		ID: "ex-1", StaffID: "s1", Month: "2026-02", Kind: practice.ExceptionLeave, Hours: practice.NewHours(16), Reason: "vacation",
	}))
	require.NoError(t, store.AddException(ctx, practice.AvailabilityException{
		ID: "ex-2", StaffID: "s1", Skill: "Senior", Month: "2026-03", Kind: practice.ExceptionOverride, Hours: practice.NewHours(40),
	}))

	got, err := store.AvailabilityExceptions(ctx, "2026-01", "2026-02")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "vacation", got[0].Reason)
	assert.Equal(t, "16", got[0].Hours.String())

	err = store.AddException(ctx, practice.AvailabilityException{ID: "ex-3", StaffID: "s1", Month: "2026-02", Kind: "sabbatical"})
	assert.ErrorIs(t, err, practice.ErrInvalidRecord)
}

// =============================================================================
// PIPELINE
// =============================================================================

func TestStore_FeedsGenerator(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: one monthly template and January capacity
	require.NoError(t, store.SetSkills(ctx, "Junior", "Senior"))
	require.NoError(t, store.PutRecurring(ctx, practice.RecurringTask{
		ID: "rt-1", ClientID: "abc123", EstimatedHours: practice.NewHours(4),
		RequiredSkills: []string{"Senior"}, Recurrence: practice.Recurrence{Type: practice.RecurMonthly},
		StartDate: date(2025, time.June, 1), Active: true,
	}))
	require.NoError(t, store.AddAvailability(ctx,
		practice.Availability{StaffID: "s1", Skill: "Senior", Month: "2026-01", AvailableHours: practice.NewHours(100)},
	))

	// WHEN: generating the virtual matrix
	m, err := matrix.NewGenerator(store, nil).Generate(ctx, matrix.Request{
		Mode: matrix.ModeVirtual, AsOf: date(2026, time.January, 15),
	})

	// THEN: demand and capacity come from the store
	require.NoError(t, err)
	p, ok := m.Point("Senior", "2026-01")
	require.True(t, ok)
	assert.Equal(t, 4.0, p.DemandHours)
	assert.Equal(t, 100.0, p.CapacityHours)
	assert.Equal(t, 48.0, m.TotalDemand)

	require.NoError(t, store.Reset(ctx))
	skills, err := store.ListSkills(ctx)
	require.NoError(t, err)
	assert.Empty(t, skills)
}
