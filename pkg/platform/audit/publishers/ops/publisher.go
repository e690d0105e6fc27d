// Package ops provides a fire-and-forget, sampled audit publisher for
// high-volume operational events (usage reports, routine verifications).
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "keystone/pkg/platform/audit"
	"keystone/pkg/platform/circuit"
)

// Publisher emits ops events with sampling and a circuit breaker so a sink
// outage cannot slow the request path.
type Publisher struct {
	store   audit.Store
	sampler *Sampler
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for persistence error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithSampler overrides the default keep-everything sampler.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) { p.sampler = s }
}

// New creates an ops publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		sampler: NewSampler(1.0),
		breaker: circuit.New("audit-ops"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track emits an ops event. Sampling and breaker drops are silent by design;
// the metrics expose the drop counts.
func (p *Publisher) Track(ctx context.Context, event audit.Event) {
	if !p.sampler.ShouldSample(event.Action) {
		if p.metrics != nil {
			p.metrics.IncSampled()
		}
		return
	}
	if p.breaker.IsOpen() {
		if p.metrics != nil {
			p.metrics.IncBreakerDropped()
		}
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := p.store.Append(ctx, event); err != nil {
		_, change := p.breaker.RecordFailure()
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
			if change.Opened {
				p.metrics.SetBreakerState(true)
			}
		}
		if p.logger != nil {
			p.logger.WarnContext(ctx, "ops audit append failed",
				"action", event.Action,
				"error", err,
			)
		}
		return
	}

	_, change := p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.IncTracked()
		if change.Closed {
			p.metrics.SetBreakerState(false)
		}
	}
}
