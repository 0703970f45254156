/*
handlers.go - HTTP API handlers for the capacity engine

PURPOSE:
  Exposes the capacity matrix, client summaries and the practice data
  that feeds them via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the forecast, clients and export
  packages.

ENDPOINTS:
  Matrix:
    GET    /api/matrix                  Validated matrix (filters optional)
    GET    /api/matrix/export           CSV or JSON download
    GET    /api/matrix/print            Skills × months grid as text
    GET    /api/matrix/clients          Clients with demand (filter options)

  Practice data:
    GET    /api/skills                  Current skill list
    POST   /api/skills                  Add a skill
    GET    /api/clients                 List clients
    POST   /api/clients                 Create or update a client
    GET    /api/clients/{id}/summary    Client task summary
    GET    /api/liaisons/{id}/summary   Liaison roll-up
    GET    /api/staff                   List staff
    GET    /api/staff/{id}              One staff member
    POST   /api/tasks                   Create a task instance
    POST   /api/recurring-tasks         Create a recurring template
    POST   /api/availability            Set nominal availability
    POST   /api/availability/exceptions Record leave or an override

  Cache:
    GET    /api/cache/stats             Counters for both caches and skill catalog status
    POST   /api/cache/invalidate        Drop a key, a pattern, or everything

MATRIX QUERY PARAMETERS:
  mode      virtual (default) | actual
  as_of     YYYY-MM or YYYY-MM-DD; first month of the window (default: now)
  clients   comma-separated client IDs; restricts demand
  skills    comma-separated skills to keep (default: all)
  from, to  YYYY-MM bounds on the months kept (default: whole window)
  start,end 0-based month indices, inclusive and clamped; not with from/to
  analytics true to attach per-skill/per-month roll-ups

REQUEST FLOW:
  1. Parse and validate input (400 on failure)
  2. Call the service (cache, generator, aggregator)
  3. Serialize response
  4. On writes, publish a change event so caches invalidate

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Client or staff not found
  - 503: A data source failed; body carries retryable=true
  - 500: Anything else
  A matrix with validation issues is still 200; see MatrixResponse.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/clients"
	"github.com/warp/capacity-engine/events"
	"github.com/warp/capacity-engine/export"
	"github.com/warp/capacity-engine/forecast"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
	"github.com/warp/capacity-engine/store/sqlite"
)

// errBadRequest marks malformed query parameters.
var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Forecast  *forecast.Service
	Clients   *clients.Aggregator
	Summaries *cache.Cache
	Bus       *events.Bus
	Logger    *slog.Logger

	// Now anchors "as of" defaults and demo scenarios.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. bus may be nil, in which case writes do
// not invalidate anything.
func NewHandler(store *sqlite.Store, svc *forecast.Service, agg *clients.Aggregator, summaries *cache.Cache, bus *events.Bus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Forecast:  svc,
		Clients:   agg,
		Summaries: summaries,
		Bus:       bus,
		Logger:    logger.With("component", "api"),
		Now:       time.Now,
	}
}

func (h *Handler) publish(ctx context.Context, e events.Event) {
	if h.Bus == nil {
		return
	}
	h.Bus.Publish(ctx, e)
}

// =============================================================================
// MATRIX HANDLERS
// =============================================================================

// GetMatrix returns the validated, optionally filtered matrix.
func (h *Handler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	resp, err := h.matrixResponse(r)
	if err != nil {
		h.writeFailure(w, "Failed to build capacity matrix", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportMatrix serializes the filtered matrix as a CSV or JSON download.
func (h *Handler) ExportMatrix(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(queryDefault(r, "format", string(export.FormatCSV)))
	if err != nil {
		h.writeFailure(w, "Invalid export format", err)
		return
	}

	resp, err := h.matrixResponse(r)
	if err != nil {
		h.writeFailure(w, "Failed to build capacity matrix", err)
		return
	}

	body, err := export.Serialize(resp.Matrix, format, export.Options{IncludeAnalytics: queryBool(r, "analytics")})
	if err != nil {
		h.writeFailure(w, "Failed to export matrix", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(resp.Matrix, format)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// PrintMatrix returns the skills × months grid as plain text, or as JSON
// rows with format=json.
func (h *Handler) PrintMatrix(w http.ResponseWriter, r *http.Request) {
	resp, err := h.matrixResponse(r)
	if err != nil {
		h.writeFailure(w, "Failed to build capacity matrix", err)
		return
	}

	table := export.PrintTable(resp.Matrix)
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, table)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := table.WriteText(w); err != nil {
		h.Logger.Warn("print table write failed", "error", err)
	}
}

// ListMatrixClients returns the clients with demand in the window, for the
// matrix client filter.
func (h *Handler) ListMatrixClients(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseMatrixRequest(r)
	if err != nil {
		h.writeFailure(w, "Invalid matrix query", err)
		return
	}

	options, err := h.Clients.ClientSkillDemand(r.Context(), req.Mode, req.AsOf)
	if err != nil {
		h.writeFailure(w, "Failed to list clients with demand", err)
		return
	}
	if options == nil {
		options = []clients.ClientDemand{}
	}
	writeJSON(w, http.StatusOK, options)
}

func (h *Handler) matrixResponse(r *http.Request) (*MatrixResponse, error) {
	req, err := h.parseMatrixRequest(r)
	if err != nil {
		return nil, err
	}

	res, err := h.Forecast.Matrix(r.Context(), req)
	if err != nil {
		return nil, err
	}

	m, err := filterMatrix(res.Matrix, r.URL.Query())
	if err != nil {
		return nil, err
	}

	resp := &MatrixResponse{
		Mode:        res.Mode,
		AsOf:        string(practice.MonthOf(req.AsOf)),
		Matrix:      m,
		IssueCount:  len(res.Issues),
		Issues:      res.Issues,
		GeneratedAt: res.GeneratedAt,
	}
	if resp.Issues == nil {
		resp.Issues = []matrix.Issue{}
	}
	if queryBool(r, "analytics") {
		a := matrix.Analyze(m)
		resp.Analytics = &a
	}
	return resp, nil
}

// filterMatrix applies the skills query and either a from/to month-key
// window or a start/end index range. The two window forms are exclusive.
func filterMatrix(m matrix.Matrix, q url.Values) (matrix.Matrix, error) {
	skills, from, to := splitList(q.Get("skills")), q.Get("from"), q.Get("to")
	start, end := q.Get("start"), q.Get("end")
	for _, key := range []string{from, to} {
		if key == "" {
			continue
		}
		if _, err := practice.ParseMonthKey(key); err != nil {
			return m, err
		}
	}
	byIndex := start != "" || end != ""
	if byIndex && (from != "" || to != "") {
		return m, fmt.Errorf("%w: use from/to or start/end, not both", errBadRequest)
	}
	if len(skills) == 0 && from == "" && to == "" && !byIndex {
		return m, nil
	}

	selected := matrix.AllSkills(m)
	if len(skills) > 0 {
		selected = selected[:0]
		for _, s := range skills {
			selected = append(selected, matrix.SkillType(s))
		}
	}
	if !byIndex {
		return matrix.FilterByMonthKeys(m, selected, from, to), nil
	}
	rng, err := matrix.ParseMonthRange(start, end, len(m.Months))
	if err != nil {
		return m, err
	}
	return matrix.Filter(m, selected, rng), nil
}

func (h *Handler) parseMatrixRequest(r *http.Request) (matrix.Request, error) {
	q := r.URL.Query()

	req := matrix.Request{Mode: matrix.ForecastMode(queryDefault(r, "mode", string(matrix.ModeVirtual)))}
	if !req.Mode.Valid() {
		return req, fmt.Errorf("%w: mode must be virtual or actual, got %q", errBadRequest, req.Mode)
	}

	req.AsOf = h.Now()
	if s := q.Get("as_of"); s != "" {
		t, err := parseAsOf(s)
		if err != nil {
			return req, err
		}
		req.AsOf = t
	}

	for _, id := range splitList(q.Get("clients")) {
		req.ClientIDs = append(req.ClientIDs, practice.ClientID(id))
	}
	return req, nil
}

// =============================================================================
// SKILL HANDLERS
// =============================================================================

// ListSkills returns the current skill list.
func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	skills := h.Forecast.Skills(r.Context())
	names := make([]string, len(skills))
	for i, s := range skills {
		names[i] = string(s)
	}
	writeJSON(w, http.StatusOK, names)
}

// AddSkill appends a skill and invalidates every matrix.
func (h *Handler) AddSkill(w http.ResponseWriter, r *http.Request) {
	var req AddSkillRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.Store.AddSkill(r.Context(), req.Name); err != nil {
		h.writeFailure(w, "Failed to add skill", err)
		return
	}
	h.publish(r.Context(), events.Event{Topic: events.TopicSkillsChanged})

	skills, err := h.Store.ListSkills(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list skills", err)
		return
	}
	writeJSON(w, http.StatusCreated, skills)
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListClients(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(list))
	for i, c := range list {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient creates or updates a client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	c := practice.Client{
		ID:        practice.ClientID(req.ID),
		Name:      req.Name,
		LiaisonID: practice.StaffID(req.LiaisonID),
		Active:    req.Active == nil || *req.Active,
	}
	if err := h.Store.PutClient(r.Context(), c); err != nil {
		h.writeFailure(w, "Failed to save client", err)
		return
	}
	h.publish(r.Context(), events.Event{Topic: events.TopicClientChanged, ClientID: req.ID, StaffID: req.LiaisonID})

	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// GetClientSummary returns the client's task summary, optionally bounded
// by ?from=YYYY-MM-DD&to=YYYY-MM-DD on due date.
func (h *Handler) GetClientSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := parseDateRange(r)
	if err != nil {
		h.writeFailure(w, "Invalid date range", err)
		return
	}

	summary, err := h.Clients.SummarizeCached(r.Context(), practice.ClientID(chi.URLParam(r, "id")), rng)
	if err != nil {
		h.writeFailure(w, "Failed to summarize client", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetLiaisonSummary rolls up the clients of one liaison.
func (h *Handler) GetLiaisonSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := parseDateRange(r)
	if err != nil {
		h.writeFailure(w, "Invalid date range", err)
		return
	}

	summary, err := h.Clients.SummarizeLiaison(r.Context(), practice.StaffID(chi.URLParam(r, "id")), rng)
	if err != nil {
		h.writeFailure(w, "Failed to summarize liaison", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns all staff ordered by name.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListStaff(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list staff", err)
		return
	}

	dtos := make([]StaffDTO, len(list))
	for i, st := range list {
		dtos[i] = toStaffDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStaff returns one staff member.
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.GetStaff(r.Context(), practice.StaffID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeFailure(w, "Failed to get staff", err)
		return
	}
	writeJSON(w, http.StatusOK, toStaffDTO(*st))
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// CreateTask stores a task instance and invalidates dependent caches.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.ID == "" {
		req.ID = "task-" + uuid.NewString()
	}
	t := practice.Task{
		ID:             practice.TaskID(req.ID),
		ClientID:       practice.ClientID(req.ClientID),
		TemplateID:     practice.TaskID(req.TemplateID),
		Name:           req.Name,
		EstimatedHours: practice.NewHours(req.EstimatedHours),
		RequiredSkills: req.RequiredSkills,
		Status:         practice.TaskStatus(req.Status),
		DueDate:        parseOptionalDate(req.DueDate),
		Category:       req.Category,
		Priority:       practice.Priority(req.Priority),
	}

	if err := h.Store.PutTask(r.Context(), t); err != nil {
		h.writeFailure(w, "Failed to save task", err)
		return
	}

	e := events.Event{Topic: events.TopicTaskChanged, ClientID: req.ClientID}
	if t.DueDate != nil {
		e.Month = string(practice.MonthOf(*t.DueDate))
	}
	h.publish(r.Context(), e)

	writeJSON(w, http.StatusCreated, TaskCreatedResponse{ID: req.ID})
}

// CreateRecurringTask stores a recurring template.
func (h *Handler) CreateRecurringTask(w http.ResponseWriter, r *http.Request) {
	var req CreateRecurringTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.ID == "" {
		req.ID = "rt-" + uuid.NewString()
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	rt := practice.RecurringTask{
		ID:             practice.TaskID(req.ID),
		ClientID:       practice.ClientID(req.ClientID),
		Name:           req.Name,
		EstimatedHours: practice.NewHours(req.EstimatedHours),
		RequiredSkills: req.RequiredSkills,
		Recurrence: practice.Recurrence{
			Type:        practice.RecurrenceType(req.RecurrenceType),
			Interval:    req.Interval,
			DayOfMonth:  req.DayOfMonth,
			MonthOfYear: time.Month(req.MonthOfYear),
		},
		StartDate: start,
		EndDate:   parseOptionalDate(req.EndDate),
		DueDate:   parseOptionalDate(req.DueDate),
		Active:    req.Active == nil || *req.Active,
		Category:  req.Category,
		Priority:  practice.Priority(req.Priority),
	}
	if rt.EndDate != nil && rt.EndDate.Before(rt.StartDate) {
		writeError(w, http.StatusBadRequest, "end_date is before start_date", practice.ErrInvalidRange)
		return
	}

	if err := h.Store.PutRecurring(r.Context(), rt); err != nil {
		h.writeFailure(w, "Failed to save recurring task", err)
		return
	}
	h.publish(r.Context(), events.Event{Topic: events.TopicTaskChanged, ClientID: req.ClientID})

	writeJSON(w, http.StatusCreated, TaskCreatedResponse{ID: req.ID})
}

// =============================================================================
// CAPACITY HANDLERS
// =============================================================================

// SetAvailability records nominal availability.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	a := practice.Availability{
		StaffID:        practice.StaffID(req.StaffID),
		Skill:          req.Skill,
		Month:          practice.MonthKey(req.Month),
		AvailableHours: practice.NewHours(req.AvailableHours),
	}
	if err := h.Store.AddAvailability(r.Context(), a); err != nil {
		h.writeFailure(w, "Failed to save availability", err)
		return
	}
	h.publish(r.Context(), events.Event{Topic: events.TopicAvailabilityChanged, StaffID: req.StaffID, Month: req.Month})

	writeJSON(w, http.StatusCreated, req)
}

// CreateException records leave or an override.
func (h *Handler) CreateException(w http.ResponseWriter, r *http.Request) {
	var req ExceptionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.ID == "" {
		req.ID = "ex-" + uuid.NewString()
	}
	e := practice.AvailabilityException{
		ID:      req.ID,
		StaffID: practice.StaffID(req.StaffID),
		Skill:   req.Skill,
		Month:   practice.MonthKey(req.Month),
		Kind:    practice.ExceptionKind(req.Kind),
		Hours:   practice.NewHours(req.Hours),
		Reason:  req.Reason,
	}
	if err := h.Store.AddException(r.Context(), e); err != nil {
		h.writeFailure(w, "Failed to save exception", err)
		return
	}
	h.publish(r.Context(), events.Event{Topic: events.TopicAvailabilityChanged, StaffID: req.StaffID, Month: req.Month})

	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// CACHE HANDLERS
// =============================================================================

// CacheStats reports counters for both caches.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	resp := CacheStatsResponse{Matrices: h.Forecast.Cache().Stats(), Skills: h.Forecast.SkillStatus()}
	if h.Summaries != nil {
		resp.Summaries = h.Summaries.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// InvalidateCache drops one key, every key matching a pattern, or
// everything when the body is empty.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	caches := []*cache.Cache{h.Forecast.Cache()}
	if h.Summaries != nil {
		caches = append(caches, h.Summaries)
	}

	removed := 0
	switch {
	case req.Key != "":
		for _, c := range caches {
			if _, ok := c.Get(req.Key); ok {
				removed++
			}
			c.Invalidate(req.Key)
		}
	case req.Pattern != "":
		re, err := regexp.Compile(req.Pattern)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid pattern", err)
			return
		}
		for _, c := range caches {
			removed += c.InvalidatePattern(re)
		}
	default:
		for _, c := range caches {
			removed += c.Len()
			c.Clear()
		}
	}

	h.Logger.Info("cache invalidated", "key", req.Key, "pattern", req.Pattern, "removed", removed)
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: removed})
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "database unavailable", Details: err.Error(), Retryable: true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeFailure maps err onto a status code.
func (h *Handler) writeFailure(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, export.ErrUnknownFormat), practice.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case practice.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case practice.IsRetryable(err):
		h.Logger.Warn("data source failure", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: message, Details: err.Error(), Retryable: true})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: message, Details: err.Error(), Retryable: true})
	default:
		h.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decodeAndValidate reads a JSON body into dst and checks its validate
// tags. It writes the 400 itself and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func queryDefault(r *http.Request, name, def string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		return v
	}
	return def
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	key, err := practice.ParseMonthKey(s)
	if err != nil {
		return time.Time{}, err
	}
	return key.Start(), nil
}

func parseDateRange(r *http.Request) (*practice.DateRange, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
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
			return nil, fmt.Errorf("%w: %q is not YYYY-MM-DD", errBadRequest, p.raw)
		}
		*p.dst = t
	}
	return &rng, nil
}

// parseOptionalDate parses a date already checked by validate tags.
func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
