package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/arena/pkg/async"
	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/config"
	"github.com/platinummonkey/arena/pkg/events"
	"github.com/platinummonkey/arena/pkg/httputil"
	"github.com/platinummonkey/arena/pkg/middleware"
	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/rbac"
)

const (
	maxRequestBytes    = 1 << 20
	acceptLimitPrefix  = "arena:ratelimit:accept"
	limiterCleanupTick = 5 * time.Minute
)

// Dependencies are the shared resources a Server is built from. Redis,
// Registry, Audit and Notifier are optional.
type Dependencies struct {
	Config   *config.Config
	DB       *sql.DB
	Redis    *redis.Client
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Audit    audit.Logger
	Notifier events.Notifier
	Version  string
}

// Server is the access-control API: the role graph administration routes and
// the event admin and invitation routes, all behind bearer authentication.
type Server struct {
	router   *mux.Router
	health   *mux.Router
	resolver *rbac.Resolver
	logger   *observability.Logger
}

// NewServer wires the stores, resolver, gate and invitation manager onto a
// router. Background upkeep started here stops when ctx is done.
func NewServer(ctx context.Context, deps Dependencies) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.NewSlogLogger(logger)
	}
	cfg := deps.Config

	verifier, err := auth.NewClaimsVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential verifier: %w", err)
	}

	rbacStore := rbac.NewStore(deps.DB)
	resolver := rbac.NewResolver(rbacStore, rbac.ResolverConfig{
		CacheTTL:  cfg.Access.PrincipalCacheTTL,
		CacheSize: cfg.Access.PrincipalCacheSize,
	}, deps.Metrics)
	permissions := rbac.NewPermissionMiddleware(deps.Metrics)

	eventStore := events.NewStore(deps.DB)
	gate := events.NewGate(eventStore, cfg.Access.PlatformAdminPermission, deps.Metrics)
	manager := events.NewInvitationManager(
		eventStore,
		auth.NewUserStore(deps.DB),
		gate,
		auth.NewTokenGenerator(),
		deps.Notifier,
		events.InvitationConfig{TTL: cfg.Access.InvitationTTL, AcceptURL: cfg.Notifications.AcceptURL},
		deps.Metrics,
	)

	s := &Server{
		router:   mux.NewRouter(),
		health:   mux.NewRouter(),
		resolver: resolver,
		logger:   logger,
	}

	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(logger),
		auditMiddleware(auditLogger),
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxRequestBytes),
		observability.HTTPMetricsMiddleware(deps.Metrics),
		middleware.NewAuthMiddleware(verifier, resolver, false).Handler,
	)

	rbac.NewHandlers(rbacStore, resolver).RegisterRoutes(s.router, permissions)
	events.NewHandlers(manager).RegisterRoutes(s.router, permissions, s.acceptLimiter(ctx, deps))

	var redisCheck redis.Cmdable
	if deps.Redis != nil {
		redisCheck = deps.Redis
	}
	observability.RegisterHealthRoutes(s.health, observability.NewHealthChecker(deps.DB, redisCheck, deps.Version))
	if deps.Registry != nil {
		observability.RegisterMetricsEndpoint(s.health, deps.Registry)
	}

	return s, nil
}

// acceptLimiter bounds invitation acceptance per caller. Redis shares the
// budget across replicas; without it each process keeps its own buckets.
func (s *Server) acceptLimiter(ctx context.Context, deps Dependencies) func(http.Handler) http.Handler {
	limits := middleware.AcceptRateLimitConfig()
	if deps.Redis != nil {
		limiter := middleware.NewDistributedRateLimiter(deps.Redis, limits, acceptLimitPrefix)
		s.logger.Info("invitation acceptance rate limited through redis")
		return middleware.NewDistributedRateLimitMiddleware(limiter, deps.Metrics).Handler
	}

	limiter := middleware.NewRateLimitMiddleware(limits, limits, deps.Metrics)
	async.Every(ctx, limiterCleanupTick, "accept limiter cleanup", func(context.Context) {
		limiter.Cleanup()
	})
	return limiter.Handler
}

// auditMiddleware makes logger the audit sink for every request
func auditMiddleware(logger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}

// Handler returns the traced API handler
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "arena-access")
}

// HealthHandler serves the probe and metrics endpoints
func (s *Server) HealthHandler() http.Handler {
	return s.health
}

// Resolver exposes the principal resolver so callers can drop cached
// principals after out-of-band role changes.
func (s *Server) Resolver() *rbac.Resolver {
	return s.resolver
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
