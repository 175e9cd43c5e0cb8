// Package tenant maps incoming requests to the team that owns them.
package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"openfeedback/internal/pkg/logger"
	"openfeedback/internal/platform/cache"
	"openfeedback/internal/platform/models"
)

const (
	DefaultTTL = 300 * time.Second

	keyPrefix = "team:subdomain:"
	// negativeValue marks a subdomain known to have no team.
	negativeValue = "null"
)

// TeamFinder looks a team up by its slug. A missing team is (nil, nil).
type TeamFinder interface {
	GetBySlug(ctx context.Context, slug string) (*models.Team, error)
}

// Resolution is the outcome of resolving request headers. Subdomain is empty
// when no header yielded one; Team is nil when no team owns Subdomain.
type Resolution struct {
	Team      *models.Team
	Subdomain string
}

// Stats are cumulative resolver counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Negative uint64
	Corrupt  uint64
	Errors   uint64
}

type Resolver struct {
	parser *HostParser
	teams  TeamFinder
	cache  cache.Cache
	ttl    time.Duration
	log    zerolog.Logger

	hits     atomic.Uint64
	misses   atomic.Uint64
	negative atomic.Uint64
	corrupt  atomic.Uint64
	errors   atomic.Uint64
}

// NewResolver returns a resolver caching lookups for ttl, or DefaultTTL when
// ttl is not positive.
func NewResolver(parser *HostParser, teams TeamFinder, c cache.Cache, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		parser: parser,
		teams:  teams,
		cache:  c,
		ttl:    ttl,
		log:    logger.Component("tenant"),
	}
}

func CacheKey(subdomain string) string {
	return keyPrefix + subdomain
}

// ResolveTeamFromHeaders tries X-Forwarded-Host, Host and then Origin. The
// first header that yields a subdomain decides the lookup.
func (r *Resolver) ResolveTeamFromHeaders(ctx context.Context, h http.Header) (Resolution, error) {
	subdomain, ok := r.subdomainFromHeaders(h)
	if !ok {
		return Resolution{}, nil
	}

	team, err := r.GetTeamBySubdomain(ctx, subdomain)
	if err != nil {
		return Resolution{Subdomain: subdomain}, err
	}
	return Resolution{Team: team, Subdomain: subdomain}, nil
}

func (r *Resolver) subdomainFromHeaders(h http.Header) (string, bool) {
	if xfh := h.Get("X-Forwarded-Host"); xfh != "" {
		if sub, ok := r.parser.ExtractSubdomain(xfh); ok {
			return sub, true
		}
	}
	if host := h.Get("Host"); host != "" {
		if sub, ok := r.parser.ExtractSubdomain(host); ok {
			return sub, true
		}
	}
	if origin := h.Get("Origin"); origin != "" {
		return r.parser.ExtractSubdomainFromOrigin(origin)
	}
	return "", false
}

func (r *Resolver) GetTeamBySubdomain(ctx context.Context, subdomain string) (*models.Team, error) {
	return r.GetTeamBySubdomainWithTTL(ctx, subdomain, r.ttl)
}

// GetTeamBySubdomainWithTTL reads through the cache. Absent teams are cached
// as a negative entry so repeated lookups skip the database.
func (r *Resolver) GetTeamBySubdomainWithTTL(ctx context.Context, subdomain string, ttl time.Duration) (*models.Team, error) {
	key := CacheKey(subdomain)

	if team, hit := r.readCache(ctx, key, subdomain); hit {
		return team, nil
	}
	r.misses.Add(1)

	team, err := r.teams.GetBySlug(ctx, subdomain)
	if err != nil {
		return nil, fmt.Errorf("lookup team %q: %w", subdomain, err)
	}

	value := negativeValue
	if team != nil {
		data, err := json.Marshal(team)
		if err != nil {
			return nil, fmt.Errorf("encode team %q: %w", subdomain, err)
		}
		value = string(data)
	}
	if err := r.cache.Set(ctx, key, value, ttl); err != nil {
		r.errors.Add(1)
		r.log.Warn().Err(err).Str("subdomain", subdomain).Msg("failed to cache team lookup")
	}

	return team, nil
}

func (r *Resolver) readCache(ctx context.Context, key, subdomain string) (*models.Team, bool) {
	raw, found, err := r.cache.Get(ctx, key)
	if err != nil {
		r.errors.Add(1)
		r.log.Warn().Err(err).Str("subdomain", subdomain).Msg("cache read failed, falling back to database")
		return nil, false
	}
	if !found {
		return nil, false
	}

	if raw == negativeValue {
		r.hits.Add(1)
		r.negative.Add(1)
		return nil, true
	}

	var team models.Team
	if err := json.Unmarshal([]byte(raw), &team); err != nil || team.ID == "" {
		r.corrupt.Add(1)
		r.log.Warn().Err(err).Str("subdomain", subdomain).Msg("discarding corrupt cache entry")
		if err := r.cache.Delete(ctx, key); err != nil {
			r.errors.Add(1)
			r.log.Warn().Err(err).Str("subdomain", subdomain).Msg("failed to delete corrupt cache entry")
		}
		return nil, false
	}

	r.hits.Add(1)
	return &team, true
}

func (r *Resolver) Stats() Stats {
	return Stats{
		Hits:     r.hits.Load(),
		Misses:   r.misses.Load(),
		Negative: r.negative.Load(),
		Corrupt:  r.corrupt.Load(),
		Errors:   r.errors.Load(),
	}
}

// RequestHeaders returns the headers of req with Host filled in, since
// net/http moves it out of req.Header.
func RequestHeaders(req *http.Request) http.Header {
	h := req.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if req.Host != "" {
		h.Set("Host", req.Host)
	}
	return h
}
