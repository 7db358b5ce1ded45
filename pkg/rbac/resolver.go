package rbac

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/observability"
)

const tracerName = "github.com/platinummonkey/arena/pkg/rbac"

// PermissionSource loads the raw role and permission data for a user
type PermissionSource interface {
	GetUserRoleNames(ctx context.Context, userID int64) ([]string, error)
	GetUserPermissionCodes(ctx context.Context, userID int64) ([]string, error)
}

// ResolverConfig configures principal caching. A zero CacheTTL disables the
// cache so every request sees the current role graph.
type ResolverConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// Resolver builds principals from the role-permission graph
type Resolver struct {
	source  PermissionSource
	cache   *expirable.LRU[int64, *auth.Principal]
	group   singleflight.Group
	gen     atomic.Uint64
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewResolver creates a principal resolver
func NewResolver(source PermissionSource, cfg ResolverConfig, metrics *observability.Metrics) *Resolver {
	r := &Resolver{
		source:  source,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 10000
		}
		r.cache = expirable.NewLRU[int64, *auth.Principal](size, nil, cfg.CacheTTL)
	}
	return r
}

// Resolve returns the principal for an authenticated user: every role name
// the user holds and the distinct union of the permission codes granted by
// those roles. A user with no roles gets an empty principal, not an error.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*auth.Principal, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.Resolve", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if r.cache != nil {
		if p, ok := r.cache.Get(userID); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			r.metrics.RecordResolve("cache", 0)
			return p, nil
		}
	}

	gen := r.gen.Load()
	v, err, shared := r.group.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		start := time.Now()
		p, err := r.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.metrics.RecordResolve("store", time.Since(start))
		if r.cache != nil && r.gen.Load() == gen {
			r.cache.Add(userID, p)
		}
		return p, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		r.metrics.RecordResolve("error", 0)
		return nil, err
	}
	if shared {
		r.metrics.RecordResolve("shared", 0)
	}

	p := v.(*auth.Principal)
	span.SetAttributes(attribute.Int("principal.permissions", len(p.Permissions())))
	return p, nil
}

func (r *Resolver) load(ctx context.Context, userID int64) (*auth.Principal, error) {
	roles, err := r.source.GetUserRoleNames(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles for user %d: %w", userID, err)
	}
	perms, err := r.source.GetUserPermissionCodes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for user %d: %w", userID, err)
	}
	return auth.NewPrincipal(userID, roles, perms), nil
}

// Invalidate drops cached principals for the given users
func (r *Resolver) Invalidate(userIDs ...int64) {
	r.gen.Add(1)
	for _, id := range userIDs {
		r.group.Forget(strconv.FormatInt(id, 10))
		if r.cache != nil {
			r.cache.Remove(id)
		}
	}
}

// InvalidateAll drops every cached principal
func (r *Resolver) InvalidateAll() {
	r.gen.Add(1)
	if r.cache != nil {
		r.cache.Purge()
	}
}
