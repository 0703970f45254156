/*
store.go - Read contracts for task, staff, skill and client data

PURPOSE:
  Defines the interface between the capacity pipeline and wherever the
  practice data lives. The pipeline only reads; writes happen through
  the concrete stores (and publish change events so caches invalidate).

KEY INTERFACES:
  TaskSource:      Recurring templates and task instances
  StaffSource:     Nominal availability and availability exceptions
  SkillStore:      The current, user-editable skill list
  ClientDirectory: Clients and their staff liaisons
  Source:          All of the above (what the stores implement)

QUERY SEMANTICS:
  TaskQuery fields are conjunctive. Empty slices and zero values mean
  "no restriction". Due-date bounds are inclusive by calendar day.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite persistence
  - store/memory/memory.go: In-memory for tests and fixtures

SEE ALSO:
  - errors.go: SourceError wraps failures from these calls
*/
package practice

import "context"

// TaskQuery restricts task reads.
type TaskQuery struct {
	ClientIDs []ClientID
	Skill     string
	Statuses  []TaskStatus
	DueWithin *DateRange
	// ActiveOnly limits recurring templates to active ones.
	ActiveOnly bool
}

// Matches applies the query to a task instance.
func (q TaskQuery) Matches(t Task) bool {
	if !q.matchesClient(t.ClientID) || !q.matchesSkill(t.RequiredSkills) {
		return false
	}
	if len(q.Statuses) > 0 {
		ok := false
		for _, s := range q.Statuses {
			if s == t.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.DueWithin != nil {
		if t.DueDate == nil || !q.DueWithin.Contains(*t.DueDate) {
			return false
		}
	}
	return true
}

// MatchesRecurring applies the query to a recurring template.
// Statuses do not apply to templates.
func (q TaskQuery) MatchesRecurring(rt RecurringTask) bool {
	if !q.matchesClient(rt.ClientID) || !q.matchesSkill(rt.RequiredSkills) {
		return false
	}
	if q.ActiveOnly && !rt.Active {
		return false
	}
	if q.DueWithin != nil {
		if rt.DueDate == nil || !q.DueWithin.Contains(*rt.DueDate) {
			return false
		}
	}
	return true
}

func (q TaskQuery) matchesClient(id ClientID) bool {
	if len(q.ClientIDs) == 0 {
		return true
	}
	for _, c := range q.ClientIDs {
		if c == id {
			return true
		}
	}
	return false
}

func (q TaskQuery) matchesSkill(skills []string) bool {
	if q.Skill == "" {
		return true
	}
	for _, s := range skills {
		if s == q.Skill {
			return true
		}
	}
	return false
}

// TaskSource reads demand records.
type TaskSource interface {
	RecurringTasks(ctx context.Context, q TaskQuery) ([]RecurringTask, error)
	TaskInstances(ctx context.Context, q TaskQuery) ([]Task, error)
}

// StaffSource reads capacity records for months in [from, to].
type StaffSource interface {
	Availability(ctx context.Context, from, to MonthKey) ([]Availability, error)
	AvailabilityExceptions(ctx context.Context, from, to MonthKey) ([]AvailabilityException, error)
}

// SkillStore returns the current list of valid skill names.
// The list is user-editable and may change between calls.
type SkillStore interface {
	ListSkills(ctx context.Context) ([]string, error)
}

// ClientDirectory looks up clients and liaison assignments.
type ClientDirectory interface {
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	ClientsByLiaison(ctx context.Context, staffID StaffID) ([]Client, error)
}

// Source is everything the capacity pipeline reads.
type Source interface {
	TaskSource
	StaffSource
	SkillStore
	ClientDirectory
}
