/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal practice and matrix types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Matrix:
    MatrixResponse, InvalidateRequest, InvalidateResponse, CacheStatsResponse

  Practice data:
    ClientDTO, CreateClientRequest, CreateTaskRequest,
    CreateRecurringTaskRequest, AvailabilityRequest, ExceptionRequest,
    AddSkillRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request bodies carry validate tags checked with go-playground/validator
  before handlers touch the store. Date and month formats are checked by
  the tags too; handlers only convert.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/forecast"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
)

// validate checks request DTOs. Safe for concurrent use.
var validate = validator.New()

// =============================================================================
// MATRIX
// =============================================================================

// MatrixResponse is a validated matrix. Issues are warnings: the matrix is
// still returned and IssueCount drives the dashboard's warning badge.
type MatrixResponse struct {
	Mode        matrix.ForecastMode `json:"mode"`
	AsOf        string              `json:"as_of"`
	Matrix      matrix.Matrix       `json:"matrix"`
	IssueCount  int                 `json:"issue_count"`
	Issues      []matrix.Issue      `json:"issues"`
	GeneratedAt time.Time           `json:"generated_at"`
	Analytics   *matrix.Analytics   `json:"analytics,omitempty"`
}

// InvalidateRequest drops cache entries. An empty body clears both caches.
type InvalidateRequest struct {
	Pattern string `json:"pattern,omitempty"`
	Key     string `json:"key,omitempty"`
}

type InvalidateResponse struct {
	Removed int `json:"removed"`
}

// CacheStatsResponse reports both caches.
type CacheStatsResponse struct {
	Matrices  cache.Stats          `json:"matrices"`
	Summaries cache.Stats          `json:"summaries"`
	Skills    forecast.SkillStatus `json:"skills"`
}

// =============================================================================
// CLIENTS
// =============================================================================

type ClientDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LiaisonID string `json:"liaison_id,omitempty"`
	Active    bool   `json:"active"`
}

type CreateClientRequest struct {
	ID        string `json:"id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	LiaisonID string `json:"liaison_id" validate:"max=64"`
	Active    *bool  `json:"active"`
}

func toClientDTO(c practice.Client) ClientDTO {
	return ClientDTO{ID: string(c.ID), Name: c.Name, LiaisonID: string(c.LiaisonID), Active: c.Active}
}

// =============================================================================
// STAFF
// =============================================================================

type StaffDTO struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Skills []string `json:"skills"`
}

func toStaffDTO(st practice.Staff) StaffDTO {
	skills := st.Skills
	if skills == nil {
		skills = []string{}
	}
	return StaffDTO{ID: string(st.ID), Name: st.Name, Skills: skills}
}

// =============================================================================
// TASKS
// =============================================================================

// CreateTaskRequest creates a task instance. ID is generated when empty.
type CreateTaskRequest struct {
	ID             string   `json:"id" validate:"max=64"`
	ClientID       string   `json:"client_id" validate:"required"`
	TemplateID     string   `json:"template_id"`
	Name           string   `json:"name" validate:"required"`
	EstimatedHours float64  `json:"estimated_hours" validate:"gte=0"`
	RequiredSkills []string `json:"required_skills" validate:"dive,required"`
	Status         string   `json:"status" validate:"omitempty,oneof=unscheduled scheduled in_progress completed canceled"`
	DueDate        string   `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Category       string   `json:"category"`
	Priority       string   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// CreateRecurringTaskRequest creates a recurring template.
type CreateRecurringTaskRequest struct {
	ID             string   `json:"id" validate:"max=64"`
	ClientID       string   `json:"client_id" validate:"required"`
	Name           string   `json:"name" validate:"required"`
	EstimatedHours float64  `json:"estimated_hours" validate:"gte=0"`
	RequiredSkills []string `json:"required_skills" validate:"dive,required"`
	RecurrenceType string   `json:"recurrence_type" validate:"required,oneof=weekly monthly quarterly semi_annually annually"`
	Interval       int      `json:"interval" validate:"gte=0,lte=52"`
	DayOfMonth     int      `json:"day_of_month" validate:"gte=0,lte=31"`
	MonthOfYear    int      `json:"month_of_year" validate:"gte=0,lte=12"`
	StartDate      string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate        string   `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Active         *bool    `json:"active"`
	Category       string   `json:"category"`
	Priority       string   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// TaskCreatedResponse echoes the stored ID.
type TaskCreatedResponse struct {
	ID string `json:"id"`
}

// =============================================================================
// CAPACITY
// =============================================================================

// AvailabilityRequest sets nominal hours for a staff member, skill and month.
type AvailabilityRequest struct {
	StaffID        string  `json:"staff_id"`
	Skill          string  `json:"skill" validate:"required"`
	Month          string  `json:"month" validate:"required,datetime=2006-01"`
	AvailableHours float64 `json:"available_hours" validate:"gte=0"`
}

// ExceptionRequest records leave or an override.
type ExceptionRequest struct {
	ID      string  `json:"id" validate:"max=64"`
	StaffID string  `json:"staff_id" validate:"required"`
	Skill   string  `json:"skill"`
	Month   string  `json:"month" validate:"required,datetime=2006-01"`
	Kind    string  `json:"kind" validate:"required,oneof=leave override"`
	Hours   float64 `json:"hours" validate:"gte=0"`
	Reason  string  `json:"reason" validate:"max=500"`
}

type AddSkillRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
