/*
Package sqlite provides SQLite persistence for practice records.

PURPOSE:
  Stores clients, staff, the skill list, recurring task templates, task
  instances, nominal availability and availability exceptions in a
  single SQLite file. Implements practice.Source so the matrix pipeline
  and client aggregation can read from it directly.

USAGE:
  store, err := sqlite.New("capacity.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  gen := matrix.NewGenerator(store, logger)

STORAGE CONVENTIONS:
  - Hours are stored as decimal TEXT so sums never drift
  - Required skills are a JSON array of names
  - Dates are YYYY-MM-DD TEXT, months are YYYY-MM TEXT
  - Skills keep the order they were added in (position column)

ERRORS:
  Read failures are wrapped as *practice.SourceError so callers can
  report them as retryable. Invalid records are rejected on write with
  *practice.RecordError.

SEE ALSO:
  - practice/store.go: Source interfaces
  - store/memory/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/capacity-engine/practice"
)

const dateLayout = "2006-01-02"

// Store implements practice.Source using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ practice.Source = (*Store)(nil)

// New creates a new SQLite store. Use ":memory:" for a throwaway database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Clients and their liaison
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		liaison_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_liaison
		ON clients(liaison_id);

	-- Staff
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		skills_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	-- Skill list (user-editable)
	CREATE TABLE IF NOT EXISTS skills (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	);

	-- Recurring task templates (virtual demand)
	CREATE TABLE IF NOT EXISTS recurring_tasks (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		name TEXT NOT NULL,
		estimated_hours TEXT NOT NULL,
		required_skills_json TEXT NOT NULL DEFAULT '[]',
		recurrence_type TEXT NOT NULL,
		recurrence_interval INTEGER NOT NULL DEFAULT 1,
		day_of_month INTEGER NOT NULL DEFAULT 0,
		month_of_year INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		end_date TEXT,
		due_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		category TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recurring_tasks_client
		ON recurring_tasks(client_id);

	-- Task instances (actual demand)
	CREATE TABLE IF NOT EXISTS task_instances (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		template_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		estimated_hours TEXT NOT NULL,
		required_skills_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		due_date TEXT,
		category TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_instances_client
		ON task_instances(client_id);
	CREATE INDEX IF NOT EXISTS idx_task_instances_due
		ON task_instances(due_date);

	-- Nominal availability per staff, skill and month
	CREATE TABLE IF NOT EXISTS staff_availability (
		staff_id TEXT NOT NULL,
		skill TEXT NOT NULL,
		month TEXT NOT NULL,
		available_hours TEXT NOT NULL,
		PRIMARY KEY (staff_id, skill, month)
	);

	CREATE INDEX IF NOT EXISTS idx_staff_availability_month
		ON staff_availability(month);

	-- Leave and overrides applied in actual mode
	CREATE TABLE IF NOT EXISTS availability_exceptions (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		skill TEXT NOT NULL DEFAULT '',
		month TEXT NOT NULL,
		kind TEXT NOT NULL,
		hours TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_availability_exceptions_month
		ON availability_exceptions(month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all records (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"availability_exceptions", "staff_availability", "task_instances",
		"recurring_tasks", "skills", "staff", "clients",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// SKILLS
// =============================================================================

// ListSkills returns skill names in the order they were added.
func (s *Store) ListSkills(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM skills ORDER BY position, name")
	if err != nil {
		return nil, practice.WrapSource("skills", "list_skills", err)
	}
	defer rows.Close()

	skills := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, practice.WrapSource("skills", "list_skills", err)
		}
		skills = append(skills, name)
	}
	return skills, practice.WrapSource("skills", "list_skills", rows.Err())
}

// SetSkills replaces the skill list.
func (s *Store) SetSkills(ctx context.Context, skills ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM skills"); err != nil {
		return err
	}
	for i, name := range skills {
		name = strings.TrimSpace(name)
		if name == "" {
			return &practice.RecordError{Kind: "skill", ID: name, Reason: "name is required"}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO skills (name, position) VALUES (?, ?)", name, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddSkill appends a skill. Adding an existing skill is a no-op.
func (s *Store) AddSkill(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &practice.RecordError{Kind: "skill", ID: name, Reason: "name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO skills (name, position)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM skills))
	`, name)
	return err
}

// =============================================================================
// CLIENTS
// =============================================================================

// PutClient inserts or updates a client.
func (s *Store) PutClient(ctx context.Context, c practice.Client) error {
	if c.ID == "" || strings.TrimSpace(c.Name) == "" {
		return &practice.RecordError{Kind: "client", ID: string(c.ID), Reason: "id and name are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO clients (id, name, liaison_id, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			liaison_id = excluded.liaison_id,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.LiaisonID, c.Active, now(),
	)
	return err
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, id practice.ClientID) (*practice.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c practice.Client
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, liaison_id, active FROM clients WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.LiaisonID, &c.Active)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", practice.ErrClientNotFound, id)
	}
	if err != nil {
		return nil, practice.WrapSource("clients", "get_client", err)
	}
	return &c, nil
}

// ListClients returns all clients ordered by ID.
func (s *Store) ListClients(ctx context.Context) ([]practice.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClients(ctx, "list_clients",
		"SELECT id, name, liaison_id, active FROM clients ORDER BY id")
}

// ClientsByLiaison returns the clients a staff member is liaison for.
func (s *Store) ClientsByLiaison(ctx context.Context, staffID practice.StaffID) ([]practice.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClients(ctx, "clients_by_liaison",
		"SELECT id, name, liaison_id, active FROM clients WHERE liaison_id = ? ORDER BY id", staffID)
}

func (s *Store) queryClients(ctx context.Context, op, query string, args ...any) ([]practice.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, practice.WrapSource("clients", op, err)
	}
	defer rows.Close()

	var clients []practice.Client
	for rows.Next() {
		var c practice.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.LiaisonID, &c.Active); err != nil {
			return nil, practice.WrapSource("clients", op, err)
		}
		clients = append(clients, c)
	}
	return clients, practice.WrapSource("clients", op, rows.Err())
}

// =============================================================================
// STAFF
// =============================================================================

// PutStaff inserts or updates a staff member.
func (s *Store) PutStaff(ctx context.Context, st practice.Staff) error {
	if st.ID == "" {
		return &practice.RecordError{Kind: "staff", ID: "", Reason: "id is required"}
	}
	skillsJSON, err := encodeSkills(st.Skills)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, skills_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			skills_json = excluded.skills_json
	`, st.ID, st.Name, skillsJSON, now())
	return err
}

// GetStaff retrieves a staff member by ID.
func (s *Store) GetStaff(ctx context.Context, id practice.StaffID) (*practice.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st practice.Staff
	var skillsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, skills_json FROM staff WHERE id = ?", id,
	).Scan(&st.ID, &st.Name, &skillsJSON)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", practice.ErrStaffNotFound, id)
	}
	if err != nil {
		return nil, practice.WrapSource("staff", "get_staff", err)
	}
	st.Skills = decodeSkills(skillsJSON)
	return &st, nil
}

// ListStaff returns all staff ordered by name.
func (s *Store) ListStaff(ctx context.Context) ([]practice.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, skills_json FROM staff ORDER BY name, id")
	if err != nil {
		return nil, practice.WrapSource("staff", "list_staff", err)
	}
	defer rows.Close()

	var staff []practice.Staff
	for rows.Next() {
		var st practice.Staff
		var skillsJSON string
		if err := rows.Scan(&st.ID, &st.Name, &skillsJSON); err != nil {
			return nil, practice.WrapSource("staff", "list_staff", err)
		}
		st.Skills = decodeSkills(skillsJSON)
		staff = append(staff, st)
	}
	return staff, practice.WrapSource("staff", "list_staff", rows.Err())
}

// =============================================================================
// RECURRING TASKS
// =============================================================================

// PutRecurring inserts or updates a recurring task template.
func (s *Store) PutRecurring(ctx context.Context, rt practice.RecurringTask) error {
	if rt.ID == "" || rt.ClientID == "" {
		return &practice.RecordError{Kind: "recurring task", ID: string(rt.ID), Reason: "id and client are required"}
	}
	if rt.EstimatedHours.IsNegative() {
		return &practice.RecordError{Kind: "recurring task", ID: string(rt.ID), Reason: "estimated hours must not be negative"}
	}
	skillsJSON, err := encodeSkills(rt.RequiredSkills)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO recurring_tasks
		(id, client_id, name, estimated_hours, required_skills_json,
		 recurrence_type, recurrence_interval, day_of_month, month_of_year,
		 start_date, end_date, due_date, active, category, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			name = excluded.name,
			estimated_hours = excluded.estimated_hours,
			required_skills_json = excluded.required_skills_json,
			recurrence_type = excluded.recurrence_type,
			recurrence_interval = excluded.recurrence_interval,
			day_of_month = excluded.day_of_month,
			month_of_year = excluded.month_of_year,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			due_date = excluded.due_date,
			active = excluded.active,
			category = excluded.category,
			priority = excluded.priority
	`
	_, err = s.db.ExecContext(ctx, query,
		rt.ID, rt.ClientID, rt.Name, rt.EstimatedHours.String(), skillsJSON,
		rt.Recurrence.Type, rt.Recurrence.Interval, rt.Recurrence.DayOfMonth, int(rt.Recurrence.MonthOfYear),
		formatDate(rt.StartDate), nullDate(rt.EndDate), nullDate(rt.DueDate),
		rt.Active, rt.Category, rt.Priority, now(),
	)
	return err
}

// RecurringTasks returns templates matching q, ordered by ID.
// Client, active and due-date filters run in SQL; the skill filter runs
// on the decoded skill list.
func (s *Store) RecurringTasks(ctx context.Context, q practice.TaskQuery) ([]practice.RecurringTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	where, args = clientFilter(where, args, q.ClientIDs)
	if q.ActiveOnly {
		where = append(where, "active = TRUE")
	}
	where, args = dueFilter(where, args, q.DueWithin)

	query := `
		SELECT id, client_id, name, estimated_hours, required_skills_json,
		       recurrence_type, recurrence_interval, day_of_month, month_of_year,
		       start_date, end_date, due_date, active, category, priority
		FROM recurring_tasks` + whereClause(where) + `
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, practice.WrapSource("tasks", "recurring_tasks", err)
	}
	defer rows.Close()

	var result []practice.RecurringTask
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, practice.WrapSource("tasks", "recurring_tasks", err)
		}
		if q.MatchesRecurring(rt) {
			result = append(result, rt)
		}
	}
	return result, practice.WrapSource("tasks", "recurring_tasks", rows.Err())
}

func scanRecurring(rows *sql.Rows) (practice.RecurringTask, error) {
	var rt practice.RecurringTask
	var hours, skillsJSON, startDate string
	var endDate, dueDate sql.NullString
	var monthOfYear int

	err := rows.Scan(
		&rt.ID, &rt.ClientID, &rt.Name, &hours, &skillsJSON,
		&rt.Recurrence.Type, &rt.Recurrence.Interval, &rt.Recurrence.DayOfMonth, &monthOfYear,
		&startDate, &endDate, &dueDate, &rt.Active, &rt.Category, &rt.Priority,
	)
	if err != nil {
		return rt, err
	}

	rt.EstimatedHours = practice.ParseHours(hours)
	rt.RequiredSkills = decodeSkills(skillsJSON)
	rt.Recurrence.MonthOfYear = time.Month(monthOfYear)
	rt.StartDate, _ = time.Parse(dateLayout, startDate)
	rt.EndDate = parseNullDate(endDate)
	rt.DueDate = parseNullDate(dueDate)
	return rt, nil
}

// =============================================================================
// TASK INSTANCES
// =============================================================================

// PutTask inserts or updates a task instance.
func (s *Store) PutTask(ctx context.Context, t practice.Task) error {
	if t.ID == "" || t.ClientID == "" {
		return &practice.RecordError{Kind: "task", ID: string(t.ID), Reason: "id and client are required"}
	}
	if t.EstimatedHours.IsNegative() {
		return &practice.RecordError{Kind: "task", ID: string(t.ID), Reason: "estimated hours must not be negative"}
	}
	if t.Status == "" {
		t.Status = practice.StatusUnscheduled
	}
	if !t.Status.Valid() {
		return &practice.RecordError{Kind: "task", ID: string(t.ID), Reason: fmt.Sprintf("unknown status %q", t.Status)}
	}
	skillsJSON, err := encodeSkills(t.RequiredSkills)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO task_instances
		(id, client_id, template_id, name, estimated_hours, required_skills_json,
		 status, due_date, category, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			template_id = excluded.template_id,
			name = excluded.name,
			estimated_hours = excluded.estimated_hours,
			required_skills_json = excluded.required_skills_json,
			status = excluded.status,
			due_date = excluded.due_date,
			category = excluded.category,
			priority = excluded.priority
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.ClientID, t.TemplateID, t.Name, t.EstimatedHours.String(), skillsJSON,
		t.Status, nullDate(t.DueDate), t.Category, t.Priority, now(),
	)
	return err
}

// TaskInstances returns task instances matching q, ordered by ID.
func (s *Store) TaskInstances(ctx context.Context, q practice.TaskQuery) ([]practice.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	where, args = clientFilter(where, args, q.ClientIDs)
	if len(q.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, st)
		}
	}
	where, args = dueFilter(where, args, q.DueWithin)

	query := `
		SELECT id, client_id, template_id, name, estimated_hours, required_skills_json,
		       status, due_date, category, priority
		FROM task_instances` + whereClause(where) + `
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, practice.WrapSource("tasks", "task_instances", err)
	}
	defer rows.Close()

	var result []practice.Task
	for rows.Next() {
		var t practice.Task
		var hours, skillsJSON string
		var dueDate sql.NullString
		if err := rows.Scan(
			&t.ID, &t.ClientID, &t.TemplateID, &t.Name, &hours, &skillsJSON,
			&t.Status, &dueDate, &t.Category, &t.Priority,
		); err != nil {
			return nil, practice.WrapSource("tasks", "task_instances", err)
		}
		t.EstimatedHours = practice.ParseHours(hours)
		t.RequiredSkills = decodeSkills(skillsJSON)
		t.DueDate = parseNullDate(dueDate)
		if q.Matches(t) {
			result = append(result, t)
		}
	}
	return result, practice.WrapSource("tasks", "task_instances", rows.Err())
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// AddAvailability records nominal availability. A second record for the
// same staff, skill and month replaces the first.
func (s *Store) AddAvailability(ctx context.Context, records ...practice.Availability) error {
	for _, a := range records {
		if a.Skill == "" {
			return &practice.RecordError{Kind: "availability", ID: string(a.StaffID), Reason: "skill is required"}
		}
		if _, err := practice.ParseMonthKey(string(a.Month)); err != nil {
			return err
		}
		if a.AvailableHours.IsNegative() {
			return &practice.RecordError{Kind: "availability", ID: string(a.StaffID), Reason: "hours must not be negative"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO staff_availability (staff_id, skill, month, available_hours)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(staff_id, skill, month) DO UPDATE SET
				available_hours = excluded.available_hours
		`, a.StaffID, a.Skill, a.Month, a.AvailableHours.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Availability returns nominal availability for months in [from, to].
func (s *Store) Availability(ctx context.Context, from, to practice.MonthKey) ([]practice.Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_id, skill, month, available_hours
		FROM staff_availability
		WHERE month >= ? AND month <= ?
		ORDER BY month, staff_id, skill
	`, from, to)
	if err != nil {
		return nil, practice.WrapSource("staff", "availability", err)
	}
	defer rows.Close()

	var result []practice.Availability
	for rows.Next() {
		var a practice.Availability
		var hours string
		if err := rows.Scan(&a.StaffID, &a.Skill, &a.Month, &hours); err != nil {
			return nil, practice.WrapSource("staff", "availability", err)
		}
		a.AvailableHours = practice.ParseHours(hours)
		result = append(result, a)
	}
	return result, practice.WrapSource("staff", "availability", rows.Err())
}

// AddException records an availability exception.
func (s *Store) AddException(ctx context.Context, e practice.AvailabilityException) error {
	if e.ID == "" || e.StaffID == "" {
		return &practice.RecordError{Kind: "exception", ID: e.ID, Reason: "id and staff are required"}
	}
	if e.Kind != practice.ExceptionLeave && e.Kind != practice.ExceptionOverride {
		return &practice.RecordError{Kind: "exception", ID: e.ID, Reason: fmt.Sprintf("unknown kind %q", e.Kind)}
	}
	if _, err := practice.ParseMonthKey(string(e.Month)); err != nil {
		return err
	}
	if e.Hours.IsNegative() {
		return &practice.RecordError{Kind: "exception", ID: e.ID, Reason: "hours must not be negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO availability_exceptions (id, staff_id, skill, month, kind, hours, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			staff_id = excluded.staff_id,
			skill = excluded.skill,
			month = excluded.month,
			kind = excluded.kind,
			hours = excluded.hours,
			reason = excluded.reason
	`, e.ID, e.StaffID, e.Skill, e.Month, e.Kind, e.Hours.String(), e.Reason, now())
	return err
}

// AvailabilityExceptions returns exceptions for months in [from, to]
// in the order they were recorded.
func (s *Store) AvailabilityExceptions(ctx context.Context, from, to practice.MonthKey) ([]practice.AvailabilityException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, skill, month, kind, hours, reason
		FROM availability_exceptions
		WHERE month >= ? AND month <= ?
		ORDER BY created_at, rowid
	`, from, to)
	if err != nil {
		return nil, practice.WrapSource("staff", "availability_exceptions", err)
	}
	defer rows.Close()

	var result []practice.AvailabilityException
	for rows.Next() {
		var e practice.AvailabilityException
		var hours string
		if err := rows.Scan(&e.ID, &e.StaffID, &e.Skill, &e.Month, &e.Kind, &hours, &e.Reason); err != nil {
			return nil, practice.WrapSource("staff", "availability_exceptions", err)
		}
		e.Hours = practice.ParseHours(hours)
		result = append(result, e)
	}
	return result, practice.WrapSource("staff", "availability_exceptions", rows.Err())
}

// Helper functions

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

// formatDate stores the UTC calendar day, matching practice.MonthOf.
func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseNullDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func encodeSkills(skills []string) (string, error) {
	if skills == nil {
		skills = []string{}
	}
	raw, err := json.Marshal(skills)
	if err != nil {
		return "", fmt.Errorf("failed to encode skills: %w", err)
	}
	return string(raw), nil
}

func decodeSkills(raw string) []string {
	var skills []string
	if err := json.Unmarshal([]byte(raw), &skills); err != nil {
		return nil
	}
	return skills
}

func clientFilter(where []string, args []any, ids []practice.ClientID) ([]string, []any) {
	if len(ids) == 0 {
		return where, args
	}
	where = append(where, "client_id IN ("+placeholders(len(ids))+")")
	for _, id := range ids {
		args = append(args, id)
	}
	return where, args
}

// dueFilter bounds due_date by calendar day. Rows without a due date are
// excluded once any bound is set.
func dueFilter(where []string, args []any, r *practice.DateRange) ([]string, []any) {
	if r == nil {
		return where, args
	}
	where = append(where, "due_date IS NOT NULL")
	if !r.Start.IsZero() {
		where = append(where, "due_date >= ?")
		args = append(args, formatDate(r.Start))
	}
	if !r.End.IsZero() {
		where = append(where, "due_date <= ?")
		args = append(args, formatDate(r.End))
	}
	return where, args
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(where, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
