/*
Package clients computes client-scoped task and hours summaries.

PURPOSE:
  Client dashboards and the matrix client filter both need per-client
  numbers: how many tasks, in which state, how many hours, split by skill,
  category and priority. These are derived on demand from the same task
  sources the generator reads; nothing here is persisted.

CLASSIFICATION:
  Task instances:
    completed               -> Completed
    in_progress             -> InProgress
    scheduled, unscheduled  -> Upcoming
    canceled                -> excluded entirely
  Recurring templates:
    active                  -> Upcoming
    inactive                -> excluded entirely

  A task requiring several skills adds its full hours to each skill.
  With a date range, records without a due date are excluded.

CACHING:
  SummarizeCached stores results under
    client-detail:<clientID>:<JSON filters>
  so the invalidator can drop one client's summaries with a prefix pattern.

SEE ALSO:
  - liaison.go: Roll-ups across a staff liaison's clients
  - demand.go: Client filter options for the matrix
*/
package clients

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/practice"
)

const (
	// ClientDetailPrefix starts client summary cache keys.
	ClientDetailPrefix = "client-detail"
	// LiaisonDetailPrefix starts liaison roll-up cache keys.
	LiaisonDetailPrefix = "liaison-detail"

	uncategorized = "uncategorized"
	noPriority    = "none"
)

// ClientTaskSummary aggregates one client's tasks.
type ClientTaskSummary struct {
	ClientID   practice.ClientID `json:"client_id"`
	ClientName string            `json:"client_name"`

	TotalTasks      int `json:"total_tasks"`
	CompletedCount  int `json:"completed_count"`
	InProgressCount int `json:"in_progress_count"`
	UpcomingCount   int `json:"upcoming_count"`
	RecurringTasks  int `json:"recurring_tasks"`
	InstanceTasks   int `json:"instance_tasks"`

	TotalEstimatedHours float64 `json:"total_estimated_hours"`
	CompletedHours      float64 `json:"completed_hours"`
	AverageTaskHours    float64 `json:"average_task_hours"`

	HoursBySkill    map[string]float64 `json:"hours_by_skill"`
	HoursByCategory map[string]float64 `json:"hours_by_category"`
	HoursByPriority map[string]float64 `json:"hours_by_priority"`
}

// SummaryFilters is the JSON part of a summary cache key.
type SummaryFilters struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// FiltersFor renders a date range as cache-key filters.
func FiltersFor(rng *practice.DateRange) SummaryFilters {
	var f SummaryFilters
	if rng == nil {
		return f
	}
	if !rng.Start.IsZero() {
		f.From = rng.Start.UTC().Format("2006-01-02")
	}
	if !rng.End.IsZero() {
		f.To = rng.End.UTC().Format("2006-01-02")
	}
	return f
}

// SummaryKey is the cache key for a client summary.
func SummaryKey(id practice.ClientID, rng *practice.DateRange) string {
	return cache.Key(ClientDetailPrefix, id, FiltersFor(rng))
}

// Aggregator computes client summaries.
type Aggregator struct {
	tasks   practice.TaskSource
	clients practice.ClientDirectory
	cache   *cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewAggregator wires an aggregator. c may be nil, in which case the
// cached variants compute every time.
func NewAggregator(src practice.Source, c *cache.Cache, ttl time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		tasks:   src,
		clients: src,
		cache:   c,
		ttl:     ttl,
		logger:  logger.With("component", "clients"),
	}
}

// Summarize aggregates the client's recurring templates and task instances,
// optionally bounded by due date.
func (a *Aggregator) Summarize(ctx context.Context, id practice.ClientID, rng *practice.DateRange) (*ClientTaskSummary, error) {
	if rng != nil {
		if err := rng.Validate(); err != nil {
			return nil, err
		}
	}

	client, err := a.clients.GetClient(ctx, id)
	if err != nil {
		if practice.IsNotFound(err) {
			return nil, err
		}
		return nil, practice.WrapSource("clients", "get_client", err)
	}

	q := practice.TaskQuery{ClientIDs: []practice.ClientID{id}, DueWithin: rng}

	templates, err := a.tasks.RecurringTasks(ctx, q)
	if err != nil {
		return nil, practice.WrapSource("tasks", "recurring_tasks", err)
	}
	instances, err := a.tasks.TaskInstances(ctx, q)
	if err != nil {
		return nil, practice.WrapSource("tasks", "task_instances", err)
	}

	acc := newAccumulator()
	for _, rt := range templates {
		if !rt.Active {
			continue
		}
		acc.add(rt.EstimatedHours, rt.RequiredSkills, rt.Category, rt.Priority, bucketUpcoming)
		acc.recurring++
	}
	for _, t := range instances {
		b, ok := classify(t.Status)
		if !ok {
			continue
		}
		acc.add(t.EstimatedHours, t.RequiredSkills, t.Category, t.Priority, b)
		acc.instances++
	}

	s := acc.summary()
	s.ClientID = client.ID
	s.ClientName = client.Name
	return s, nil
}

// SummarizeCached is Summarize behind the summary cache.
func (a *Aggregator) SummarizeCached(ctx context.Context, id practice.ClientID, rng *practice.DateRange) (*ClientTaskSummary, error) {
	if a.cache == nil {
		return a.Summarize(ctx, id, rng)
	}
	return cache.GetOrSet(ctx, a.cache, SummaryKey(id, rng), func(ctx context.Context) (*ClientTaskSummary, error) {
		return a.Summarize(ctx, id, rng)
	}, a.ttl)
}

// =============================================================================
// ACCUMULATION
// =============================================================================

type bucket int

const (
	bucketCompleted bucket = iota
	bucketInProgress
	bucketUpcoming
)

func classify(s practice.TaskStatus) (bucket, bool) {
	switch s {
	case practice.StatusCompleted:
		return bucketCompleted, true
	case practice.StatusInProgress:
		return bucketInProgress, true
	case practice.StatusScheduled, practice.StatusUnscheduled:
		return bucketUpcoming, true
	default:
		return 0, false
	}
}

// accumulator sums in decimal hours and converts once at the end.
type accumulator struct {
	counts     [3]int
	recurring  int
	instances  int
	total      practice.Hours
	completed  practice.Hours
	bySkill    map[string]practice.Hours
	byCategory map[string]practice.Hours
	byPriority map[string]practice.Hours
}

func newAccumulator() *accumulator {
	return &accumulator{
		total:      practice.ZeroHours(),
		completed:  practice.ZeroHours(),
		bySkill:    make(map[string]practice.Hours),
		byCategory: make(map[string]practice.Hours),
		byPriority: make(map[string]practice.Hours),
	}
}

func (a *accumulator) add(h practice.Hours, skills []string, category string, priority practice.Priority, b bucket) {
	h = h.ClampZero()
	a.counts[b]++
	a.total = a.total.Add(h)
	if b == bucketCompleted {
		a.completed = a.completed.Add(h)
	}

	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		a.bySkill[s] = a.bySkill[s].Add(h)
	}

	if category == "" {
		category = uncategorized
	}
	a.byCategory[category] = a.byCategory[category].Add(h)

	p := string(priority)
	if p == "" {
		p = noPriority
	}
	a.byPriority[p] = a.byPriority[p].Add(h)
}

func (a *accumulator) merge(o *accumulator) {
	for i := range a.counts {
		a.counts[i] += o.counts[i]
	}
	a.recurring += o.recurring
	a.instances += o.instances
	a.total = a.total.Add(o.total)
	a.completed = a.completed.Add(o.completed)
	mergeHours(a.bySkill, o.bySkill)
	mergeHours(a.byCategory, o.byCategory)
	mergeHours(a.byPriority, o.byPriority)
}

func (a *accumulator) summary() *ClientTaskSummary {
	s := &ClientTaskSummary{
		CompletedCount:      a.counts[bucketCompleted],
		InProgressCount:     a.counts[bucketInProgress],
		UpcomingCount:       a.counts[bucketUpcoming],
		RecurringTasks:      a.recurring,
		InstanceTasks:       a.instances,
		TotalEstimatedHours: a.total.Float64(),
		CompletedHours:      a.completed.Float64(),
		HoursBySkill:        toFloats(a.bySkill),
		HoursByCategory:     toFloats(a.byCategory),
		HoursByPriority:     toFloats(a.byPriority),
	}
	s.TotalTasks = s.CompletedCount + s.InProgressCount + s.UpcomingCount
	if s.TotalTasks > 0 {
		s.AverageTaskHours = s.TotalEstimatedHours / float64(s.TotalTasks)
	}
	return s
}

// fromSummary rebuilds an accumulator from a finished summary so cached
// per-client results can be rolled up.
func fromSummary(s *ClientTaskSummary) *accumulator {
	a := newAccumulator()
	a.counts = [3]int{s.CompletedCount, s.InProgressCount, s.UpcomingCount}
	a.recurring = s.RecurringTasks
	a.instances = s.InstanceTasks
	a.total = practice.NewHours(s.TotalEstimatedHours)
	a.completed = practice.NewHours(s.CompletedHours)
	for k, v := range s.HoursBySkill {
		a.bySkill[k] = practice.NewHours(v)
	}
	for k, v := range s.HoursByCategory {
		a.byCategory[k] = practice.NewHours(v)
	}
	for k, v := range s.HoursByPriority {
		a.byPriority[k] = practice.NewHours(v)
	}
	return a
}

func mergeHours(dst, src map[string]practice.Hours) {
	for k, v := range src {
		dst[k] = dst[k].Add(v)
	}
}

func toFloats(m map[string]practice.Hours) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v.Float64()
	}
	return out
}
