package resolve

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/resilience"
)

// DefaultMaxSources is the number of sources kept per candidate.
const DefaultMaxSources = 4

// Resolver maps candidates to ranked sources. Results are cached per
// candidate identity for the resolver's lifetime, so each identity costs at
// most one successful provider query per run.
type Resolver struct {
	provider   SearchProvider
	throttle   *resilience.Throttle
	policy     resilience.Policy
	maxSources int
	filter     *Filter
	onQuery    func()

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string][]model.SourceCandidate
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThrottle shares a search throttle across workers.
func WithThrottle(t *resilience.Throttle) Option {
	return func(r *Resolver) { r.throttle = t }
}

// WithPolicy sets the retry policy for provider calls.
func WithPolicy(p resilience.Policy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithMaxSources caps the sources returned per candidate.
func WithMaxSources(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxSources = n
		}
	}
}

// WithFilter drops excluded URLs before ranking.
func WithFilter(f *Filter) Option {
	return func(r *Resolver) { r.filter = f }
}

// WithQueryHook is called once per provider request, e.g. to price queries.
func WithQueryHook(fn func()) Option {
	return func(r *Resolver) { r.onQuery = fn }
}

// NewResolver creates a Resolver over the provider.
func NewResolver(provider SearchProvider, opts ...Option) *Resolver {
	r := &Resolver{
		provider:   provider,
		policy:     resilience.NewPolicy(0, 0, 0),
		maxSources: DefaultMaxSources,
		cache:      make(map[string][]model.SourceCandidate),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns up to maxSources ranked sources for the candidate.
// Candidates carrying a document resolve to a single inline source without
// a search. A query that matches nothing returns an empty slice.
func (r *Resolver) Resolve(ctx context.Context, c model.Candidate) ([]model.SourceCandidate, error) {
	if c.HasDocument() {
		return []model.SourceCandidate{{
			URL:         "inline:" + c.Key(),
			Rank:        1,
			ContentType: model.ContentInline,
			Text:        c.Document,
		}}, nil
	}

	key := c.Key()
	if cached, ok := r.cached(key); ok {
		return cached, nil
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		if cached, ok := r.cached(key); ok {
			return cached, nil
		}
		sources, err := r.search(ctx, BuildQuery(c))
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = sources
		r.mu.Unlock()
		return sources, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: %s", key)
	}
	if shared {
		zap.L().Debug("resolve: shared in-flight lookup", zap.String("candidate", key))
	}
	return clone(v.([]model.SourceCandidate)), nil
}

func (r *Resolver) cached(key string) ([]model.SourceCandidate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.cache[key]
	if !ok {
		return nil, false
	}
	return clone(s), true
}

func (r *Resolver) search(ctx context.Context, query string) ([]model.SourceCandidate, error) {
	policy := r.policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger(r.provider.Name(), "search")
	}

	hits, err := resilience.DoVal(ctx, policy, func(ctx context.Context) ([]SearchHit, error) {
		return resilience.Call(ctx, r.throttle, func(ctx context.Context) ([]SearchHit, error) {
			if r.onQuery != nil {
				r.onQuery()
			}
			return r.provider.Search(ctx, query, r.maxSources)
		})
	})
	if err != nil {
		return nil, err
	}

	sources := Rank(hits, r.maxSources, r.filter)
	zap.L().Debug("resolve: search complete",
		zap.String("provider", r.provider.Name()),
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Int("sources", len(sources)),
	)
	return sources, nil
}

// Rank turns provider hits into sources: empty and excluded URLs are
// dropped, duplicates keep their first position, ranks are renumbered
// densely from 1 and the list is capped at limit.
func Rank(hits []SearchHit, limit int, filter *Filter) []model.SourceCandidate {
	out := make([]model.SourceCandidate, 0, min(len(hits), max(limit, 0)))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		raw := strings.TrimSpace(h.URL)
		if raw == "" || filter.Excluded(raw) {
			continue
		}
		key := canonicalURL(raw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ct := model.InferContentType(raw)
		if strings.EqualFold(h.Mime, "application/pdf") {
			ct = model.ContentPDF
		}
		out = append(out, model.SourceCandidate{
			URL:         raw,
			Rank:        len(out) + 1,
			ContentType: ct,
			Title:       h.Title,
			Snippet:     h.Snippet,
		})
	}
	return out
}

// canonicalURL is the dedupe key: scheme and host lowercased, fragment and
// trailing slash dropped.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = strings.TrimSuffix(u.RawPath, "/")
	return u.String()
}

// BuildQuery renders the search text for a candidate: the title-cased name
// followed by office, jurisdiction and year when present.
func BuildQuery(c model.Candidate) string {
	name := strings.Join(strings.Fields(c.Name), " ")
	if name == "" {
		name = strings.Join(strings.Fields(strings.Join(
			[]string{c.FirstName, c.MiddleName, c.LastName, c.Suffix}, " ")), " ")
	}
	// Casers keep state and are not shared between goroutines.
	parts := []string{cases.Title(language.English).String(strings.ToLower(name))}
	for _, p := range []string{c.Office, c.Jurisdiction} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if c.Year > 0 {
		parts = append(parts, strconv.Itoa(c.Year))
	}
	return strings.Join(parts, " ")
}

func clone(s []model.SourceCandidate) []model.SourceCandidate {
	out := make([]model.SourceCandidate, len(s))
	copy(out, s)
	return out
}
