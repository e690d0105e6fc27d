// Package security provides a buffered, fail-open audit publisher for
// security events.
//
// Every verification attempt — successful or not — is logged for forensic
// replay, which makes this the highest-volume audit path. Events are
// buffered in a bounded ring and flushed to the store by a background loop;
// a sink outage degrades to dropped telemetry, never to blocked
// verifications.
package security

import (
	"context"
	"log/slog"
	"time"

	audit "keystone/pkg/platform/audit"
)

const defaultFlushInterval = time.Second
const defaultBatchSize = 256

// Publisher emits security events without blocking the caller.
type Publisher struct {
	store         audit.Store
	buffer        *RingBuffer
	logger        *slog.Logger
	flushInterval time.Duration
	batchSize     int
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for flush error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithBufferCapacity bounds the in-flight event buffer.
func WithBufferCapacity(n int) Option {
	return func(p *Publisher) { p.buffer = NewRingBuffer(n) }
}

// WithFlushInterval overrides how often the background loop drains the
// buffer.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) { p.flushInterval = d }
}

// New creates a security publisher. Call Run to start the flush loop.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        NewRingBuffer(0),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enqueues a security event. Never blocks and never returns an error;
// on overflow the oldest buffered event is dropped.
func (p *Publisher) Emit(event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.buffer.Enqueue(event)
}

// Run drains the buffer until ctx is cancelled, then performs a final flush
// so shutdown does not lose the tail.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// Flush drains the buffer once. Exposed for tests and shutdown paths.
func (p *Publisher) Flush(ctx context.Context) {
	p.flush(ctx)
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.store.Append(ctx, event); err != nil {
				if p.logger != nil {
					p.logger.WarnContext(ctx, "security audit append failed",
						"subtype", event.Subtype,
						"error", err,
					)
				}
			}
		}
	}
}
