/*
skills.go - The dynamic skill set

PURPOSE:
  Skills are user-editable data loaded from a SkillStore, not a compiled
  enum. The catalog loads the current list, remembers the last good one,
  and degrades to it when the store is slow or down, so the generator and
  the filter controls keep working instead of failing the whole request.

HOW IT WORKS:
  1. Load() asks the store for the list
  2. Names are trimmed and de-duplicated, store order preserved
  3. On success the list replaces the remembered one
  4. On failure the remembered list (possibly empty) is returned and a
     warning is logged; Load never returns an error, Fetch returns the
     store error alongside the fallback list

USAGE:
  catalog := matrix.NewSkillCatalog(store, logger)
  skills := catalog.Load(ctx)          // []SkillType
  if catalog.Contains("CPA") { ... }   // against the last loaded list

SEE ALSO:
  - practice/store.go: SkillStore interface
  - generator.go: Seeds matrix skills from the catalog
*/
package matrix

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/warp/capacity-engine/practice"
)

// SkillCatalog caches the skill list loaded from a SkillStore.
type SkillCatalog struct {
	store  practice.SkillStore
	logger *slog.Logger

	mu       sync.RWMutex
	skills   []SkillType
	loadedAt time.Time
	lastErr  error
}

func NewSkillCatalog(store practice.SkillStore, logger *slog.Logger) *SkillCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &SkillCatalog{store: store, logger: logger.With("component", "skills")}
}

// Load refreshes the list from the store, falling back to the last good list.
func (c *SkillCatalog) Load(ctx context.Context) []SkillType {
	skills, _ := c.Fetch(ctx)
	return skills
}

// Fetch is Load that also returns the store error when the fallback list
// was served. The list is usable either way.
func (c *SkillCatalog) Fetch(ctx context.Context) ([]SkillType, error) {
	names, err := c.store.ListSkills(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		fallback := append([]SkillType{}, c.skills...)
		c.mu.Unlock()

		c.logger.Warn("skills store unavailable, using last known skills",
			"error", err,
			"fallback_count", len(fallback),
		)
		return fallback, err
	}

	skills := NormalizeSkills(names)

	c.mu.Lock()
	c.skills = skills
	c.loadedAt = time.Now()
	c.lastErr = nil
	c.mu.Unlock()

	return append([]SkillType{}, skills...), nil
}

// Skills returns the last loaded list without touching the store.
func (c *SkillCatalog) Skills() []SkillType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]SkillType{}, c.skills...)
}

// Contains reports whether name is in the last loaded list.
func (c *SkillCatalog) Contains(name SkillType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.skills {
		if s == name {
			return true
		}
	}
	return false
}

// LastError returns the error from the most recent failed load, if the
// catalog is currently serving a fallback.
func (c *SkillCatalog) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LoadedAt is when the list was last refreshed successfully.
func (c *SkillCatalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// NormalizeSkills trims names, drops blanks and duplicates, keeps order.
func NormalizeSkills(names []string) []SkillType {
	seen := make(map[SkillType]bool, len(names))
	skills := make([]SkillType, 0, len(names))
	for _, n := range names {
		s := SkillType(strings.TrimSpace(n))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		skills = append(skills, s)
	}
	return skills
}
