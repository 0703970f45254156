package forecast

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/clients"
	"github.com/warp/capacity-engine/events"
)

// =============================================================================
// INVALIDATOR - Maps change events to cache keys
// =============================================================================
//
//   task.changed                 -> all matrices; the client's summaries
//                                   (all summaries when no client given);
//                                   all liaison roll-ups
//   staff.availability.changed   -> all matrices
//   skills.changed               -> all matrices
//   client.changed               -> the client's summaries; liaison roll-ups
//   forecast.changed             -> all matrices
//
// Every handled event also triggers the refresh debouncer, if one is set.

var (
	allMatrices  = cache.PrefixPattern(MatrixKeyPrefix)
	allSummaries = cache.PrefixPattern(clients.ClientDetailPrefix)
	allLiaisons  = cache.PrefixPattern(clients.LiaisonDetailPrefix)
)

// Invalidator drops cached matrices and summaries when practice data changes.
type Invalidator struct {
	matrices  *cache.Cache
	summaries *cache.Cache
	refresh   *Debouncer
	logger    *slog.Logger
}

// NewInvalidator builds an invalidator. summaries and refresh may be nil.
func NewInvalidator(matrices, summaries *cache.Cache, refresh *Debouncer, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		matrices:  matrices,
		summaries: summaries,
		refresh:   refresh,
		logger:    logger.With("component", "invalidator"),
	}
}

// Attach subscribes to every topic on bus.
func (i *Invalidator) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(events.TopicAll, i.Handle)
}

// Handle applies the invalidation rules for e.
func (i *Invalidator) Handle(ctx context.Context, e events.Event) {
	var matrices, summaries int

	switch e.Topic {
	case events.TopicTaskChanged:
		matrices = i.matrices.InvalidatePattern(allMatrices)
		summaries = i.dropSummaries(e.ClientID)
	case events.TopicAvailabilityChanged, events.TopicSkillsChanged, events.TopicForecastChanged:
		matrices = i.matrices.InvalidatePattern(allMatrices)
	case events.TopicClientChanged:
		summaries = i.dropSummaries(e.ClientID)
	default:
		return
	}

	i.logger.Debug("caches invalidated",
		"topic", e.Topic,
		"client_id", e.ClientID,
		"matrices", matrices,
		"summaries", summaries,
	)

	if i.refresh != nil {
		i.refresh.Trigger()
	}
}

func (i *Invalidator) dropSummaries(clientID string) int {
	if i.summaries == nil {
		return 0
	}
	var pattern *regexp.Regexp
	if clientID == "" {
		pattern = allSummaries
	} else {
		pattern = cache.PrefixPattern(clients.ClientDetailPrefix, clientID)
	}
	return i.summaries.InvalidatePattern(pattern) + i.summaries.InvalidatePattern(allLiaisons)
}
