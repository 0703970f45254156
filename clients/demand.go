package clients

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
)

// ClientDemand is one entry of the matrix client filter: a client with
// demand in the forecast window and the skills that demand needs.
type ClientDemand struct {
	ClientID practice.ClientID `json:"client_id"`
	Name     string            `json:"name"`
	Skills   []string          `json:"skills"`
	Hours    float64           `json:"hours"`
}

// ClientSkillDemand joins clients onto the matrix domain: for the 12-month
// window starting at asOf it returns each active client with non-zero
// demand under mode, sorted by name.
func (a *Aggregator) ClientSkillDemand(ctx context.Context, mode matrix.ForecastMode, asOf time.Time) ([]ClientDemand, error) {
	first := practice.MonthOf(asOf)
	window := practice.MonthRange(first, first.AddMonths(matrix.ForecastMonths-1))

	hours := make(map[practice.ClientID]practice.Hours)
	skills := make(map[practice.ClientID]map[string]bool)
	book := func(id practice.ClientID, h practice.Hours, req []string) {
		hours[id] = hours[id].Add(h.ClampZero())
		if skills[id] == nil {
			skills[id] = make(map[string]bool)
		}
		for _, s := range req {
			if s != "" {
				skills[id][s] = true
			}
		}
	}

	switch mode {
	case matrix.ModeVirtual:
		templates, err := a.tasks.RecurringTasks(ctx, practice.TaskQuery{ActiveOnly: true})
		if err != nil {
			return nil, practice.WrapSource("tasks", "recurring_tasks", err)
		}
		for _, rt := range templates {
			if n := len(matrix.Occurrences(rt, window.Start, window.End)); n > 0 {
				book(rt.ClientID, rt.EstimatedHours.Mul(decimal.NewFromInt(int64(n))), rt.RequiredSkills)
			}
		}
	case matrix.ModeActual:
		tasks, err := a.tasks.TaskInstances(ctx, practice.TaskQuery{DueWithin: &window})
		if err != nil {
			return nil, practice.WrapSource("tasks", "task_instances", err)
		}
		for _, t := range tasks {
			if t.Status != practice.StatusCanceled {
				book(t.ClientID, t.EstimatedHours, t.RequiredSkills)
			}
		}
	default:
		return nil, &practice.RecordError{Kind: "forecast mode", ID: string(mode), Reason: "unknown"}
	}

	clients, err := a.clients.ListClients(ctx)
	if err != nil {
		return nil, practice.WrapSource("clients", "list_clients", err)
	}

	out := []ClientDemand{}
	for _, c := range clients {
		h, ok := hours[c.ID]
		if !ok || !c.Active || h.IsZero() {
			continue
		}
		names := make([]string, 0, len(skills[c.ID]))
		for s := range skills[c.ID] {
			names = append(names, s)
		}
		sort.Strings(names)
		out = append(out, ClientDemand{ClientID: c.ID, Name: c.Name, Skills: names, Hours: h.Float64()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
