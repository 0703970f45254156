/*
Package forecast is the caller-facing entry point for capacity matrices.

PURPOSE:
  Ties the generator, validator and cache together:
    request -> cache key -> (hit | generate + validate + store) -> copy

  Validation runs once per computed matrix and its issues are cached with
  it. Callers always receive their own copy of the matrix. A matrix built
  from the fallback skill list carries a skills_fallback warning and is
  never cached.

KEY FORMAT:
  matrix:<mode>:<YYYY-MM>:<clients>
    clients is "all" or a sorted, comma-joined client ID list

  Example: matrix:actual:2026-01:abc123,xyz789

SEE ALSO:
  - invalidator.go: Drops keys when practice data changes
  - debounce.go: Coalesces re-warming after bursts of changes
*/
package forecast

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/practice"
)

// MatrixKeyPrefix starts every matrix cache key.
const MatrixKeyPrefix = "matrix"

// Result is a validated matrix.
type Result struct {
	Mode        matrix.ForecastMode `json:"mode"`
	Matrix      matrix.Matrix       `json:"matrix"`
	Issues      []matrix.Issue      `json:"issues"`
	GeneratedAt time.Time           `json:"generated_at"`

	// SkillsFallback is set when the skill store failed and the matrix
	// was built from the last known skill list.
	SkillsFallback bool `json:"skills_fallback,omitempty"`
}

// HasIssues reports whether validation found anything.
func (r *Result) HasIssues() bool { return len(r.Issues) > 0 }

// CacheTTL keeps fallback matrices out of the cache so the next request
// retries the skill store.
func (r *Result) CacheTTL(ttl time.Duration) time.Duration {
	if r.SkillsFallback {
		return 0
	}
	return ttl
}

func (r *Result) clone() *Result {
	c := *r
	c.Matrix = r.Matrix.Clone()
	c.Issues = append([]matrix.Issue{}, r.Issues...)
	return &c
}

type Options struct {
	TTL       time.Duration
	Validator matrix.Validator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Service serves cached, validated matrices.
type Service struct {
	gen       *matrix.Generator
	cache     *cache.Cache
	ttl       time.Duration
	validator matrix.Validator
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(gen *matrix.Generator, c *cache.Cache, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Validator.ExpectedMonths == 0 {
		opts.Validator = matrix.DefaultValidator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		gen:       gen,
		cache:     c,
		ttl:       opts.TTL,
		validator: opts.Validator,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "forecast"),
	}
}

// Matrix returns the validated matrix for req from cache or by generating it.
// AsOf is normalized to its month; a zero AsOf means the current month.
func (s *Service) Matrix(ctx context.Context, req matrix.Request) (*Result, error) {
	req = s.normalize(req)
	key := MatrixKey(req)

	res, err := cache.GetOrSet(ctx, s.cache, key, func(ctx context.Context) (*Result, error) {
		return s.build(ctx, req)
	}, s.ttl)
	if err != nil {
		return nil, err
	}
	return res.clone(), nil
}

func (s *Service) build(ctx context.Context, req matrix.Request) (*Result, error) {
	m, warnings, err := s.gen.GenerateWithWarnings(ctx, req)
	if err != nil {
		return nil, err
	}
	issues := s.validator.Validate(*m)
	if len(issues) > 0 {
		s.logger.Warn("matrix has validation issues",
			"mode", req.Mode,
			"issues", len(issues),
			"first", issues[0].Message,
		)
	}

	res := &Result{Mode: req.Mode, Matrix: *m, Issues: append(warnings, issues...), GeneratedAt: s.now().UTC()}
	for _, w := range warnings {
		if w.Code == matrix.IssueSkillsFallback {
			res.SkillsFallback = true
		}
	}
	return res, nil
}

// Skills returns the current skill list, degrading to the last known one.
func (s *Service) Skills(ctx context.Context) []matrix.SkillType {
	return s.gen.Skills.Load(ctx)
}

// SkillStatus describes the skill catalog behind the matrices.
type SkillStatus struct {
	Count     int       `json:"count"`
	LoadedAt  time.Time `json:"loaded_at"`
	LastError string    `json:"last_error,omitempty"`
}

// SkillStatus reports the last loaded skill list without touching the store.
func (s *Service) SkillStatus() SkillStatus {
	catalog := s.gen.Skills
	st := SkillStatus{Count: len(catalog.Skills()), LoadedAt: catalog.LoadedAt()}
	if err := catalog.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Cache exposes the matrix cache for stats and manual invalidation.
func (s *Service) Cache() *cache.Cache { return s.cache }

// DefaultRequests are the unfiltered matrices dashboards open with.
func (s *Service) DefaultRequests() []matrix.Request {
	asOf := s.now()
	return []matrix.Request{
		s.normalize(matrix.Request{Mode: matrix.ModeVirtual, AsOf: asOf}),
		s.normalize(matrix.Request{Mode: matrix.ModeActual, AsOf: asOf}),
	}
}

// WarmUp recomputes the default matrices. Returns how many were loaded.
func (s *Service) WarmUp(ctx context.Context) int {
	reqs := s.DefaultRequests()
	entries := make([]cache.WarmUpEntry, 0, len(reqs))
	for _, req := range reqs {
		req := req
		entries = append(entries, cache.WarmUpEntry{
			Key:    MatrixKey(req),
			Loader: func(ctx context.Context) (any, error) { return s.build(ctx, req) },
			TTL:    s.ttl,
		})
	}
	return s.cache.WarmUp(ctx, entries)
}

func (s *Service) normalize(req matrix.Request) matrix.Request {
	if req.AsOf.IsZero() {
		req.AsOf = s.now()
	}
	req.AsOf = practice.MonthOf(req.AsOf).Start()
	req.ClientIDs = sortedClients(req.ClientIDs)
	return req
}

// MatrixKey builds the cache key for a normalized request.
func MatrixKey(req matrix.Request) string {
	clients := "all"
	if ids := sortedClients(req.ClientIDs); len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = string(id)
		}
		clients = strings.Join(parts, ",")
	}
	return cache.Key(MatrixKeyPrefix, string(req.Mode), practice.MonthOf(req.AsOf), clients)
}

func sortedClients(ids []practice.ClientID) []practice.ClientID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[practice.ClientID]bool, len(ids))
	out := make([]practice.ClientID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
