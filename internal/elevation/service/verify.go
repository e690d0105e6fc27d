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
	"keystone/internal/policy"
)

// Verification reason strings, stable for callers that branch on text.
const (
	ReasonTokenNotFound       = "token not found"
	ReasonTenantNotAuthorized = "tenant not authorized"
	ReasonMarketNotAuthorized = "market not authorized"
	ReasonRevoked             = "revoked"
	ReasonExpired             = "expired"
)

// VerifyElevation checks a presented token against the store and the
// caller's isolation context. Invalid outcomes return valid=false with a
// reason and the matching named error; the record is returned whenever one
// exists so callers can inspect revocation metadata. Every attempt,
// successful or not, lands in the security audit stream for forensic
// replay.
//
// Expiry is authoritative by timestamp: a record whose window has closed is
// invalid regardless of its stored status.
func (m *Manager) VerifyElevation(ctx context.Context, token string) (bool, string, *models.ElevationRecord, error) {
	ctx, span := m.tracer.Start(ctx, "elevation.verify")
	defer span.End()

	fingerprint := tokenFingerprint(token)

	record, err := m.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			m.verificationEvent(ctx, fingerprint, nil, "token_not_found")
			m.metrics.IncVerification("token_not_found")
			return false, ReasonTokenNotFound, nil, fmt.Errorf("fingerprint %s: %w", fingerprint, ErrTokenNotFound)
		}
		return false, "", nil, dErrors.Wrap(dErrors.CodeInternal, "elevation lookup failed", err)
	}

	if tenant := requestcontext.TenantID(ctx); tenant != record.TenantID {
		m.verificationEvent(ctx, fingerprint, &record, "tenant_not_authorized")
		m.metrics.IncVerification("tenant_not_authorized")
		return false, ReasonTenantNotAuthorized, nil, fmt.Errorf("elevation %s: %w", record.ElevationID, ErrTenantNotAuthorized)
	}

	if market := requestcontext.Market(ctx); market != record.Market && !m.cfg.UniversalMarkets[record.Market] {
		m.verificationEvent(ctx, fingerprint, &record, "market_not_authorized")
		m.metrics.IncVerification("market_not_authorized")
		return false, ReasonMarketNotAuthorized, nil, fmt.Errorf("elevation %s: %w", record.ElevationID, ErrMarketNotAuthorized)
	}

	if record.Status == models.StatusRevoked {
		m.verificationEvent(ctx, fingerprint, &record, "revoked")
		m.metrics.IncVerification("revoked")
		reason := ReasonRevoked
		if record.RevokedReason != "" {
			reason = ReasonRevoked + ": " + record.RevokedReason
		}
		return false, reason, &record, fmt.Errorf("elevation %s: %w", record.ElevationID, ErrTokenRevoked)
	}

	if record.ExpiredAt(requestcontext.Now(ctx)) {
		m.verificationEvent(ctx, fingerprint, &record, "expired")
		m.metrics.IncVerification("expired")
		return false, ReasonExpired, &record, fmt.Errorf("elevation %s: %w", record.ElevationID, ErrTokenExpired)
	}

	m.verificationEvent(ctx, fingerprint, &record, "valid")
	m.metrics.IncVerification("valid")
	return true, "", &record, nil
}

// UsageReport describes one elevated operation performed under a verified
// token.
type UsageReport struct {
	Operation string
	Resource  string
	Namespace string
	Result    string
}

// RecordUsage reports an elevated operation as a Used event after the fact.
// It evaluates the usage-checkpoint policy and never changes record status;
// an elevation may be used repeatedly until expiry or revocation.
func (m *Manager) RecordUsage(ctx context.Context, elevationID id.ElevationID, usage UsageReport) error {
	ctx, span := m.tracer.Start(ctx, "elevation.usage")
	defer span.End()

	record, err := m.store.FindByID(ctx, elevationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("elevation %s: %w", elevationID, ErrElevationNotFound)
		}
		return dErrors.Wrap(dErrors.CodeInternal, "elevation lookup failed", err)
	}

	now := requestcontext.Now(ctx)
	decision, err := m.policies.Evaluate(ctx, policy.CheckpointUsage, record.Market, map[string]any{
		"requester_id":  record.RequesterID.String(),
		"tenant_id":     record.TenantID.String(),
		"market":        string(record.Market),
		"business_unit": record.BusinessUnit,
		"command":       usage.Operation,
		"target":        usage.Resource,
		"namespace":     usage.Namespace,
		"time_of_day":   now.Format("15:04"),
		"day_of_week":   now.Weekday().String(),
	})
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "usage policy evaluation failed", err)
	}

	event := m.lifecycleEvent(ctx, audit.SubtypeElevationUsed, record, usage.Result)
	event.Action = usage.Operation
	event.Details["operation"] = usage.Operation
	event.Details["resource"] = usage.Resource
	event.Details["namespace"] = usage.Namespace
	event.Details["result"] = usage.Result

	if !decision.Allowed {
		event.Result = "policy_denied"
		event.Reason = joinReasons(decision.Reasons)
		event.Severity = audit.SeverityWarning
		m.security.Emit(event)
		m.metrics.IncUsageReport("denied")
		return &PolicyDeniedError{Checkpoint: policy.CheckpointUsage, Reasons: decision.Reasons}
	}

	m.ops.Track(ctx, event)
	m.metrics.IncUsageReport("allowed")
	return nil
}

// verificationEvent records one verification attempt in the security
// stream. The raw token never appears; only its fingerprint.
func (m *Manager) verificationEvent(ctx context.Context, fingerprint string, record *models.ElevationRecord, result string) {
	event := audit.Event{
		Type:         "privilege_elevation",
		Subtype:      audit.SubtypeElevationVerified,
		Timestamp:    requestcontext.Now(ctx),
		ActorID:      requestcontext.ActorID(ctx).String(),
		TenantID:     requestcontext.TenantID(ctx),
		Market:       requestcontext.Market(ctx),
		ResourceType: "elevation",
		Action:       "verify",
		Result:       result,
		Severity:     audit.SeverityInfo,
		Client:       m.client(ctx),
		Details:      map[string]any{"token_fingerprint": fingerprint},
	}
	if record != nil {
		event.ResourceID = record.ElevationID.String()
		event.BusinessUnit = record.BusinessUnit
		event.RelatedActorID = record.RequesterID.String()
	}
	if result != "valid" {
		event.Severity = audit.SeverityWarning
	}
	m.security.Emit(event)
}
