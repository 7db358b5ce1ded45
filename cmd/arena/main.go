package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/arena/pkg/api"
	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/config"
	"github.com/platinummonkey/arena/pkg/events"
	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/rbac"
	"github.com/platinummonkey/arena/pkg/storage/postgres"
)

var version = "dev"

func main() {
	migrate := flag.Bool("migrate", false, "Apply database migrations before serving")
	seed := flag.Bool("seed", false, "Load the permission catalog and system roles before serving")
	flag.Parse()

	// Bootstrap messages go to logrus until the structured logger exists.
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	if err := run(cfg, *migrate, *seed); err != nil {
		boot.Fatalf("arena exited: %v", err)
	}
}

func run(cfg *config.Config, migrate, seed bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	conn, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		return err
	}
	db := conn.DB()
	conn.ReportStats(ctx, time.Minute, logger.WithField("component", "db"))

	if migrate {
		if err := applyMigrations(ctx, db, logger); err != nil {
			conn.Close()
			return err
		}
	}
	if seed {
		if err := seedCatalog(ctx, db, cfg.SeedFile, logger); err != nil {
			conn.Close()
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{URL: cfg.Redis.URL, PoolSize: cfg.Redis.PoolSize})
		if err != nil {
			conn.Close()
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewDBStatsCollector(db, "arena"))
	metrics := observability.NewMetrics(registry)

	server, err := api.NewServer(ctx, api.Dependencies{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics,
		Audit:    audit.NewMultiLogger(audit.NewSlogLogger(logger), audit.NewDBLogger(db)),
		Notifier: notifier(cfg.Notifications, logger),
		Version:  version,
	})
	if err != nil {
		conn.Close()
		return err
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           server.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.Register("database", func(context.Context) error { return conn.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("opentelemetry", otel.Shutdown)
	shutdown.Register("background tasks", func(context.Context) error {
		cancel()
		return nil
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}(srv)
	}

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("server failed")
			stopWaiting()
		}
	}()

	return shutdown.Wait(waitCtx)
}

func applyMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		return err
	}
	if err := events.RunMigrations(ctx, db, logger); err != nil {
		return err
	}
	return audit.RunMigrations(ctx, db, logger)
}

func seedCatalog(ctx context.Context, db *sql.DB, path string, logger *observability.Logger) error {
	data := rbac.DefaultSeed()
	if path != "" {
		var err error
		if data, err = rbac.LoadSeedFile(path); err != nil {
			return err
		}
	}
	result, err := rbac.Seed(ctx, rbac.NewStore(db), data, logger)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"permissions":   result.Permissions,
		"roles_created": result.RolesCreated,
		"grants":        result.Grants,
	}).Info("catalog seeded")
	return nil
}

// notifier delivers invitations to the configured webhook, or only logs them
func notifier(cfg config.NotificationConfig, logger *observability.Logger) events.Notifier {
	if cfg.WebhookURL == "" {
		return events.NewLogNotifier(logger)
	}
	return events.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
}
