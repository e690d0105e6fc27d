package consumer

import (
	"context"
	"fmt"
	"log/slog"

	audit "keystone/pkg/platform/audit"

	"keystone/internal/platform/kafka/consumer"
)

// SecurityHandler ingests security audit events for SIEM integration.
type SecurityHandler struct {
	store  audit.Appender
	logger *slog.Logger
}

// NewSecurityHandler creates a security event handler.
func NewSecurityHandler(store audit.Appender, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{store: store, logger: logger}
}

// Handle processes a security audit event.
func (h *SecurityHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := audit.UnmarshalWire(msg.Value)
	if err != nil {
		h.logger.Warn("failed to decode security event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = msg.Timestamp
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Error("failed to store security event",
			"event_id", event.ID,
			"subtype", event.Subtype,
			"error", err,
		)
		return fmt.Errorf("store security event: %w", err)
	}

	h.logger.Debug("stored security event",
		"event_id", event.ID,
		"subtype", event.Subtype,
		"severity", event.Severity,
	)
	return nil
}
