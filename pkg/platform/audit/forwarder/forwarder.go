// Package forwarder streams audit events to Kafka for downstream SIEM and
// warehouse consumers. The forwarder is a mirror sink: the durable store
// remains authoritative, so a broker outage degrades to dropped stream
// telemetry behind a circuit breaker instead of failing the write path.
package forwarder

import (
	"context"
	"log/slog"
	"sync"

	audit "keystone/pkg/platform/audit"
	"keystone/pkg/platform/circuit"
)

// probeEvery is the open-circuit probe cadence: one event in probeEvery
// attempts the broker, the rest are dropped.
const probeEvery = 10

// Producer publishes keyed messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Forwarder publishes audit events to category-suffixed topics, e.g.
// keystone.audit.events.compliance.
type Forwarder struct {
	producer    Producer
	topicPrefix string
	breaker     *circuit.Breaker
	logger      *slog.Logger

	mu         sync.Mutex
	sinceProbe int
	dropped    uint64
}

// New creates a forwarder publishing under the given topic prefix.
func New(producer Producer, topicPrefix string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		producer:    producer,
		topicPrefix: topicPrefix,
		breaker:     circuit.New("audit-forwarder", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(3)),
		logger:      logger,
	}
}

// Topics returns every topic the forwarder may publish to, for startup
// topic creation.
func (f *Forwarder) Topics() []string {
	return []string{
		f.topic(audit.CategoryCompliance),
		f.topic(audit.CategorySecurity),
		f.topic(audit.CategoryOperations),
	}
}

// Append publishes the event to its category topic. While the breaker is
// open events are dropped and counted against the reopen probe.
func (f *Forwarder) Append(ctx context.Context, event audit.Event) error {
	topic := f.topic(event.Category())

	value, err := audit.MarshalWire(event)
	if err != nil {
		return err
	}

	if f.breaker.IsOpen() {
		// While open, most events are dropped without touching the broker.
		// One in probeEvery goes through as a probe; enough probe successes
		// close the circuit again.
		if !f.shouldProbe() {
			f.noteDrop()
			return nil
		}
		if err := f.producer.Publish(ctx, topic, []byte(event.ID.String()), value); err != nil {
			f.breaker.RecordFailure()
			f.noteDrop()
			return err
		}
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "audit forwarder circuit closed",
				"topic", topic,
				"events_dropped", f.Dropped(),
			)
		}
		return nil
	}

	if err := f.producer.Publish(ctx, topic, []byte(event.ID.String()), value); err != nil {
		if _, change := f.breaker.RecordFailure(); change.Opened {
			f.logger.ErrorContext(ctx, "audit forwarder circuit opened",
				"topic", topic,
				"error", err,
			)
		}
		return err
	}
	f.breaker.RecordSuccess()
	return nil
}

// Dropped reports how many events were shed while the circuit was open.
func (f *Forwarder) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *Forwarder) shouldProbe() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceProbe++
	if f.sinceProbe >= probeEvery {
		f.sinceProbe = 0
		return true
	}
	return false
}

func (f *Forwarder) noteDrop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped++
}

func (f *Forwarder) topic(category audit.EventCategory) string {
	return f.topicPrefix + "." + string(category)
}
