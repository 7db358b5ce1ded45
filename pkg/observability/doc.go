// Package observability carries the service's logging, metrics, tracing and
// health probes.
//
// Logger wraps a JSON slog handler and travels on the request context:
//
//	ctx = observability.WithLogger(ctx, logger.WithField("request_id", id))
//	observability.FromContext(ctx).WithError(err).Warn("notification failed")
//
// Metrics registers the Prometheus collectors for HTTP traffic,
// authorization decisions, principal resolution, invitation transitions and
// rate limiting. A nil *Metrics records nothing.
//
// InitOTel installs OTLP trace and meter providers; HealthChecker backs
// /health/live and /health/ready; ShutdownManager drains servers and closes
// resources in reverse order.
package observability
