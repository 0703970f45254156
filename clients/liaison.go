package clients

import (
	"context"

	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/practice"
)

// LiaisonSummary rolls up every client a staff member is liaison for.
type LiaisonSummary struct {
	StaffID practice.StaffID    `json:"staff_id"`
	Clients []ClientTaskSummary `json:"clients"`
	Totals  ClientTaskSummary   `json:"totals"`
}

// LiaisonKey is the cache key for a liaison roll-up.
func LiaisonKey(staffID practice.StaffID, rng *practice.DateRange) string {
	return cache.Key(LiaisonDetailPrefix, staffID, FiltersFor(rng))
}

// SummarizeLiaison summarizes each of the liaison's clients (through the
// client summary cache) and totals them. Inactive clients are skipped.
func (a *Aggregator) SummarizeLiaison(ctx context.Context, staffID practice.StaffID, rng *practice.DateRange) (*LiaisonSummary, error) {
	if a.cache == nil {
		return a.summarizeLiaison(ctx, staffID, rng)
	}
	return cache.GetOrSet(ctx, a.cache, LiaisonKey(staffID, rng), func(ctx context.Context) (*LiaisonSummary, error) {
		return a.summarizeLiaison(ctx, staffID, rng)
	}, a.ttl)
}

func (a *Aggregator) summarizeLiaison(ctx context.Context, staffID practice.StaffID, rng *practice.DateRange) (*LiaisonSummary, error) {
	clients, err := a.clients.ClientsByLiaison(ctx, staffID)
	if err != nil {
		return nil, practice.WrapSource("clients", "clients_by_liaison", err)
	}

	out := &LiaisonSummary{StaffID: staffID, Clients: []ClientTaskSummary{}}
	total := newAccumulator()
	for _, c := range clients {
		if !c.Active {
			continue
		}
		s, err := a.SummarizeCached(ctx, c.ID, rng)
		if err != nil {
			return nil, err
		}
		out.Clients = append(out.Clients, *s)
		total.merge(fromSummary(s))
	}

	out.Totals = *total.summary()
	a.logger.Debug("liaison summarized", "staff_id", staffID, "clients", len(out.Clients))
	return out, nil
}
