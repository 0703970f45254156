// Package memory provides an in-memory practice.Source (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/capacity-engine/practice"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory holds practice records in maps. Reads return copies.
// Fail, when set, is returned from every read; tests use it to simulate
// an unavailable data source.
type Memory struct {
	mu         sync.RWMutex
	skills     []string
	clients    map[practice.ClientID]practice.Client
	recurring  map[practice.TaskID]practice.RecurringTask
	tasks      map[practice.TaskID]practice.Task
	avail      []practice.Availability
	exceptions []practice.AvailabilityException

	Fail error

	// Calls counts reads per method, for single-flight assertions.
	Calls map[string]int
}

var _ practice.Source = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		clients:   make(map[practice.ClientID]practice.Client),
		recurring: make(map[practice.TaskID]practice.RecurringTask),
		tasks:     make(map[practice.TaskID]practice.Task),
		Calls:     make(map[string]int),
	}
}

// =============================================================================
// WRITES
// =============================================================================

// SetSkills replaces the skill list.
func (m *Memory) SetSkills(skills ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills = append([]string(nil), skills...)
}

func (m *Memory) PutClient(c practice.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

func (m *Memory) PutRecurring(rt practice.RecurringTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt.RequiredSkills = append([]string(nil), rt.RequiredSkills...)
	m.recurring[rt.ID] = rt
}

func (m *Memory) PutTask(t practice.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.RequiredSkills = append([]string(nil), t.RequiredSkills...)
	m.tasks[t.ID] = t
}

func (m *Memory) AddAvailability(a ...practice.Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avail = append(m.avail, a...)
}

func (m *Memory) AddException(e ...practice.AvailabilityException) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions = append(m.exceptions, e...)
}

// CallCount returns how many times a read method ran.
func (m *Memory) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[method]
}

// =============================================================================
// READS (practice.Source)
// =============================================================================

func (m *Memory) begin(ctx context.Context, method string) error {
	m.mu.Lock()
	m.Calls[method]++
	fail := m.Fail
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fail
}

func (m *Memory) ListSkills(ctx context.Context) ([]string, error) {
	if err := m.begin(ctx, "ListSkills"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.skills...), nil
}

func (m *Memory) RecurringTasks(ctx context.Context, q practice.TaskQuery) ([]practice.RecurringTask, error) {
	if err := m.begin(ctx, "RecurringTasks"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []practice.RecurringTask
	for _, rt := range m.recurring {
		if q.MatchesRecurring(rt) {
			rt.RequiredSkills = append([]string(nil), rt.RequiredSkills...)
			result = append(result, rt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) TaskInstances(ctx context.Context, q practice.TaskQuery) ([]practice.Task, error) {
	if err := m.begin(ctx, "TaskInstances"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []practice.Task
	for _, t := range m.tasks {
		if q.Matches(t) {
			t.RequiredSkills = append([]string(nil), t.RequiredSkills...)
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) Availability(ctx context.Context, from, to practice.MonthKey) ([]practice.Availability, error) {
	if err := m.begin(ctx, "Availability"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []practice.Availability
	for _, a := range m.avail {
		if a.Month >= from && a.Month <= to {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *Memory) AvailabilityExceptions(ctx context.Context, from, to practice.MonthKey) ([]practice.AvailabilityException, error) {
	if err := m.begin(ctx, "AvailabilityExceptions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []practice.AvailabilityException
	for _, e := range m.exceptions {
		if e.Month >= from && e.Month <= to {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) GetClient(ctx context.Context, id practice.ClientID) (*practice.Client, error) {
	if err := m.begin(ctx, "GetClient"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, practice.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) ListClients(ctx context.Context) ([]practice.Client, error) {
	if err := m.begin(ctx, "ListClients"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedClients(func(practice.Client) bool { return true }), nil
}

func (m *Memory) ClientsByLiaison(ctx context.Context, staffID practice.StaffID) ([]practice.Client, error) {
	if err := m.begin(ctx, "ClientsByLiaison"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedClients(func(c practice.Client) bool { return c.LiaisonID == staffID }), nil
}

func (m *Memory) sortedClients(keep func(practice.Client) bool) []practice.Client {
	var result []practice.Client
	for _, c := range m.clients {
		if keep(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
