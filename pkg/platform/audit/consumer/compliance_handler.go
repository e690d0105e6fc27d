package consumer

import (
	"context"
	"fmt"
	"log/slog"

	audit "keystone/pkg/platform/audit"

	"keystone/internal/platform/kafka/consumer"
)

// ComplianceHandler ingests compliance audit events. These carry legal
// significance, so validation is strict and failures are loud; malformed
// messages are committed anyway because redelivery cannot repair them.
type ComplianceHandler struct {
	store  audit.Appender
	logger *slog.Logger
}

// NewComplianceHandler creates a compliance event handler.
func NewComplianceHandler(store audit.Appender, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{store: store, logger: logger}
}

// Handle processes a compliance audit event.
func (h *ComplianceHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := audit.UnmarshalWire(msg.Value)
	if err != nil {
		h.logger.Error("CRITICAL: failed to decode compliance event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	if event.ActorID == "" {
		h.logger.Error("CRITICAL: compliance event missing actor",
			"event_id", event.ID,
			"subtype", event.Subtype,
		)
		return nil
	}
	if event.TenantID.IsNil() {
		h.logger.Error("CRITICAL: compliance event missing tenant scope",
			"event_id", event.ID,
			"subtype", event.Subtype,
		)
		return nil
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Error("failed to store compliance event",
			"event_id", event.ID,
			"subtype", event.Subtype,
			"error", err,
		)
		return fmt.Errorf("store compliance event: %w", err)
	}

	h.logger.Debug("stored compliance event",
		"event_id", event.ID,
		"subtype", event.Subtype,
		"tenant_id", event.TenantID,
	)
	return nil
}
