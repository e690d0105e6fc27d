// Package compliance provides a fail-closed audit publisher for regulatory
// events.
//
// The publisher emits compliance-category events with synchronous semantics:
// the caller blocks until the write succeeds. If the write fails, an error is
// returned and the calling operation decides whether to proceed. For the
// elevation core, pre-commit events fail the operation; post-commit events
// only log on failure because the grant is already durable.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "keystone/pkg/platform/audit"
)

// Publisher emits compliance events synchronously.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// New creates a compliance publisher backed by a durable store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store.
// Returns an error if persistence fails; the caller decides the consequence.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.ActorID == "" {
		return fmt.Errorf("compliance event requires ActorID")
	}
	if event.Subtype == "" {
		return fmt.Errorf("compliance event requires Subtype")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"subtype", event.Subtype,
				"resource_id", event.ResourceID,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
	return nil
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error { return nil }
