package consumer

import (
	"context"
	"log/slog"

	audit "keystone/pkg/platform/audit"

	"keystone/internal/platform/kafka/consumer"
)

// OpsHandler ingests operational audit events. Lowest-stakes stream; a
// failed append is logged and committed rather than redelivered, since ops
// events are sampled upstream anyway.
type OpsHandler struct {
	store  audit.Appender
	logger *slog.Logger
}

// NewOpsHandler creates an operations event handler.
func NewOpsHandler(store audit.Appender, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{store: store, logger: logger}
}

// Handle processes an operations audit event.
func (h *OpsHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := audit.UnmarshalWire(msg.Value)
	if err != nil {
		h.logger.Warn("failed to decode ops event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Warn("failed to store ops event",
			"event_id", event.ID,
			"subtype", event.Subtype,
			"error", err,
		)
	}
	return nil
}
