package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Appender is the write half of Store, for sinks that cannot be queried
// (stream forwarders, exporters).
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// Fanout writes every event to the primary store and mirrors it to
// secondary sinks. The primary is authoritative: its failure is the
// caller's failure, mirror failures are only logged. Queries go to the
// primary.
type Fanout struct {
	primary Store
	mirrors []Appender
	logger  *slog.Logger
}

// NewFanout wraps the primary store with best-effort mirrors.
func NewFanout(primary Store, logger *slog.Logger, mirrors ...Appender) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

// Append assigns the event ID before the primary write so the primary and
// every mirror record the same identity.
func (f *Fanout) Append(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := f.primary.Append(ctx, event); err != nil {
		return err
	}
	for _, mirror := range f.mirrors {
		if err := mirror.Append(ctx, event); err != nil {
			f.logger.WarnContext(ctx, "audit mirror append failed",
				"subtype", event.Subtype,
				"event_id", event.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (f *Fanout) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return f.primary.Query(ctx, filter)
}
