/*
Package practice defines the records the capacity pipeline reads.

PURPOSE:
  This package holds the practice-management data the matrix pipeline
  consumes: client tasks (recurring templates and concrete instances),
  staff availability per skill and month, availability exceptions
  (leave, overrides), clients and their staff liaisons.

  Nothing here computes a forecast. The matrix, clients and export
  packages build on these types; the store packages persist them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: A decimal quantity of work hours
  - Task / RecurringTask: Demand records
  - Availability / AvailabilityException: Capacity records
  - Client / Staff: Ownership and liaison mapping

DESIGN PRINCIPLES:
  1. Precision: Hours use decimal.Decimal so sums never drift
  2. Skills are data: RequiredSkills is a plain string slice
  3. Records are values: sources return copies, never shared pointers

SEE ALSO:
  - store.go: Source interfaces
  - time.go: Month keys and date ranges
  - errors.go: Error taxonomy
*/
package practice

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Work quantity
// =============================================================================

// Hours is an amount of work time. Arithmetic is exact.
type Hours struct {
	Value decimal.Decimal
}

func NewHours(value float64) Hours          { return Hours{Value: decimal.NewFromFloat(value)} }
func ZeroHours() Hours                      { return Hours{Value: decimal.Zero} }
func (h Hours) Add(o Hours) Hours           { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours           { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) Mul(n decimal.Decimal) Hours { return Hours{Value: h.Value.Mul(n)} }
func (h Hours) IsNegative() bool            { return h.Value.IsNegative() }
func (h Hours) IsZero() bool                { return h.Value.IsZero() }
func (h Hours) String() string              { return h.Value.String() }

// Float64 returns the hours as a float for reporting.
func (h Hours) Float64() float64 {
	f, _ := h.Value.Float64()
	return f
}

// ClampZero returns h, or zero when h is negative.
func (h Hours) ClampZero() Hours {
	if h.IsNegative() {
		return ZeroHours()
	}
	return h
}

// ParseHours parses a decimal string. Invalid input yields zero hours.
func ParseHours(s string) Hours {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroHours()
	}
	return Hours{Value: d}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type StaffID string
type TaskID string

// =============================================================================
// TASK STATUS / PRIORITY
// =============================================================================

type TaskStatus string

const (
	StatusUnscheduled TaskStatus = "unscheduled"
	StatusScheduled   TaskStatus = "scheduled"
	StatusInProgress  TaskStatus = "in_progress"
	StatusCompleted   TaskStatus = "completed"
	StatusCanceled    TaskStatus = "canceled"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusUnscheduled, StatusScheduled, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// =============================================================================
// TASK - Concrete scheduled work (drives "actual" demand)
// =============================================================================

// Task is a concrete task instance with a due date.
type Task struct {
	ID             TaskID
	ClientID       ClientID
	TemplateID     TaskID // recurring template this instance came from, if any
	Name           string
	EstimatedHours Hours
	RequiredSkills []string
	Status         TaskStatus
	DueDate        *time.Time
	Category       string
	Priority       Priority
}

// =============================================================================
// RECURRING TASK - Template (drives "virtual" demand)
// =============================================================================

type RecurrenceType string

const (
	RecurWeekly       RecurrenceType = "weekly"
	RecurMonthly      RecurrenceType = "monthly"
	RecurQuarterly    RecurrenceType = "quarterly"
	RecurSemiAnnually RecurrenceType = "semi_annually"
	RecurAnnually     RecurrenceType = "annually"
)

// Recurrence describes when a template produces work.
type Recurrence struct {
	Type RecurrenceType

	// Every Interval units of Type (default 1).
	Interval int

	// Day of the month an occurrence falls on (default: StartDate's day).
	// Clamped to the last day of short months.
	DayOfMonth int

	// For annual recurrences: the month the occurrence falls in
	// (default: StartDate's month).
	MonthOfYear time.Month
}

// RecurringTask is a template that repeats on a schedule.
type RecurringTask struct {
	ID             TaskID
	ClientID       ClientID
	Name           string
	EstimatedHours Hours
	RequiredSkills []string
	Recurrence     Recurrence
	StartDate      time.Time
	EndDate        *time.Time
	DueDate        *time.Time // next due date
	Active         bool
	Category       string
	Priority       Priority
}

// =============================================================================
// CAPACITY RECORDS
// =============================================================================

// Availability is nominal staff capacity for a skill in a month.
// StaffID may be empty for pooled capacity that exceptions cannot target.
type Availability struct {
	StaffID        StaffID
	Skill          string
	Month          MonthKey
	AvailableHours Hours
}

type ExceptionKind string

const (
	// ExceptionLeave subtracts hours from the staff member's nominal capacity.
	ExceptionLeave ExceptionKind = "leave"
	// ExceptionOverride replaces the staff member's nominal capacity.
	ExceptionOverride ExceptionKind = "override"
)

// AvailabilityException adjusts nominal capacity in "actual" forecasts.
// An empty Skill applies to every skill the staff member holds that month.
type AvailabilityException struct {
	ID      string
	StaffID StaffID
	Skill   string
	Month   MonthKey
	Kind    ExceptionKind
	Hours   Hours
	Reason  string
}

// =============================================================================
// CLIENTS / STAFF
// =============================================================================

type Client struct {
	ID        ClientID
	Name      string
	LiaisonID StaffID
	Active    bool
}

type Staff struct {
	ID     StaffID
	Name   string
	Skills []string
}
