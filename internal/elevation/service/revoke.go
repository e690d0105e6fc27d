package service

import (
	"context"
	"errors"
	"fmt"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/audit"
	"keystone/pkg/platform/sentinel"
	"keystone/pkg/requestcontext"

	"keystone/internal/elevation/models"
)

// RevokeElevation transitions a record to Revoked exactly once. The actor
// must be the original approver (when approver revocation is enabled), hold
// a configured admin role, or be the subject (when self-revocation is
// enabled). Unauthorized attempts change nothing and return
// ErrRevocationNotAuthorized; a second revocation returns ErrAlreadyRevoked
// with the original metadata intact.
func (m *Manager) RevokeElevation(ctx context.Context, elevationID id.ElevationID, actorID id.UserID, reason string) error {
	ctx, span := m.tracer.Start(ctx, "elevation.revoke")
	defer span.End()

	record, err := m.store.FindByID(ctx, elevationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			m.metrics.IncRevocation("not_found")
			return fmt.Errorf("elevation %s: %w", elevationID, ErrElevationNotFound)
		}
		return dErrors.Wrap(dErrors.CodeInternal, "elevation lookup failed", err)
	}

	if !m.canRevoke(ctx, record, actorID) {
		event := m.lifecycleEvent(ctx, audit.SubtypeElevationRevoked, record, "unauthorized")
		event.ActorID = actorID.String()
		event.RelatedActorID = record.RequesterID.String()
		event.Reason = "actor not authorized to revoke"
		event.Severity = audit.SeverityWarning
		m.security.Emit(event)
		m.metrics.IncRevocation("unauthorized")
		return fmt.Errorf("actor %s on elevation %s: %w", actorID, elevationID, ErrRevocationNotAuthorized)
	}

	revoked, err := m.store.Revoke(ctx, elevationID, actorID, reason, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrRevoked):
			m.metrics.IncRevocation("already_revoked")
			return fmt.Errorf("elevation %s: %w", elevationID, ErrAlreadyRevoked)
		case errors.Is(err, sentinel.ErrNotFound):
			m.metrics.IncRevocation("not_found")
			return fmt.Errorf("elevation %s: %w", elevationID, ErrElevationNotFound)
		default:
			return dErrors.Wrap(dErrors.CodeInternal, "revocation failed", err)
		}
	}

	// Committed. Audit, security log, and notification are single attempts;
	// their failures never unwind the revocation.
	event := m.lifecycleEvent(ctx, audit.SubtypeElevationRevoked, revoked, "revoked")
	event.ActorID = actorID.String()
	event.RelatedActorID = revoked.RequesterID.String()
	event.Reason = reason
	if err := m.compliance.Emit(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "revoked event emission failed",
			"elevation_id", elevationID,
			"error", err,
		)
	}
	event.Severity = audit.SeverityWarning
	m.security.Emit(event)

	if m.notifier != nil {
		if err := m.notifier.NotifyExpired(ctx, elevationID, revoked.RequesterID); err != nil {
			m.logger.WarnContext(ctx, "revocation notification failed",
				"elevation_id", elevationID,
				"error", err,
			)
		}
	}

	m.metrics.IncRevocation("revoked")
	m.logger.InfoContext(ctx, "elevation revoked",
		"elevation_id", elevationID,
		"actor_id", actorID,
		"reason", reason,
	)
	return nil
}

func (m *Manager) canRevoke(ctx context.Context, record models.ElevationRecord, actorID id.UserID) bool {
	rules := m.cfg.Revocation
	if rules.ApproverCanRevoke && actorID == record.ApproverID && !actorID.IsNil() {
		return true
	}
	if rules.AllowSelfRevocation && actorID == record.RequesterID {
		return true
	}
	if len(rules.AdminRoles) > 0 {
		admin := make(map[string]bool, len(rules.AdminRoles))
		for _, role := range rules.AdminRoles {
			admin[role] = true
		}
		for _, role := range requestcontext.ActorRoles(ctx) {
			if admin[role] {
				return true
			}
		}
	}
	return false
}
