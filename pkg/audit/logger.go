package audit

import (
	"context"
	"errors"

	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *AuditEvent) error
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok && logger != nil {
		return logger
	}
	return NoOpLogger{}
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(context.Context, *AuditEvent) error { return nil }
func (NoOpLogger) Close() error                           { return nil }

// SlogLogger writes audit events as structured log lines
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates an audit logger backed by the structured logger
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger.WithField("component", "audit")}
}

func (l *SlogLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"audit_event": string(event.EventType),
		"status":      string(event.Status),
		"timestamp":   event.Timestamp,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta."+k] = v
	}

	log := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		log.Info(event.Message)
	} else {
		log.Warn(event.Message)
	}
	return nil
}

func (l *SlogLogger) Close() error { return nil }

// MultiLogger fans events out to several loggers synchronously. Every logger
// receives the event even if an earlier one fails.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to all of loggers
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record writes event through the context's audit logger and reports
// failures to the context's structured logger. Audit failures never fail the
// operation being audited.
func Record(ctx context.Context, event *AuditEvent) {
	if err := FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("audit_event", string(event.EventType)).
			Warn("failed to write audit event")
	}
}
