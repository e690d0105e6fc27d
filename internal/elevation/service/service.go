// Package service implements the elevation manager: the orchestrator that
// takes a request through policy evaluation, step-up authentication,
// sign-off, token minting, and persistence, then verifies, audits, and
// revokes the resulting grants.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/audit"
	platformstrings "keystone/pkg/platform/strings"
	"keystone/pkg/requestcontext"

	"keystone/internal/elevation/metrics"
	"keystone/internal/elevation/models"
	"keystone/internal/elevation/store"
	"keystone/internal/mfa"
	"keystone/internal/policy"
)

// PolicyGate evaluates elevation policy at a checkpoint.
type PolicyGate interface {
	Enforcing() bool
	Evaluate(ctx context.Context, cp policy.Checkpoint, market id.Market, input map[string]any) (policy.Decision, error)
}

// MFAGate decides and drives step-up authentication.
type MFAGate interface {
	CheckMFARequirement(ctx context.Context, userID id.UserID) (bool, string, error)
	Challenge(ctx context.Context, userID id.UserID) (string, error)
	Verify(ctx context.Context, userID id.UserID, challengeID, token string) error
}

// Notifier delivers lifecycle notifications. Delivery failures are logged,
// never propagated; a granted elevation stays granted.
type Notifier interface {
	NotifyRequested(ctx context.Context, request models.ElevationRequest) error
	NotifyApproved(ctx context.Context, approval models.ElevationApproval) error
	NotifyExpired(ctx context.Context, elevationID id.ElevationID, userID id.UserID) error
}

// EvidenceSigner produces the tamper-evident approval-evidence reference
// embedded in records and audit metadata.
type EvidenceSigner interface {
	Sign(ctx context.Context, approval models.ElevationApproval) (string, error)
}

// CompliancePublisher persists regulatory events synchronously.
type CompliancePublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SecurityPublisher enqueues forensic events without blocking.
type SecurityPublisher interface {
	Emit(event audit.Event)
}

// OpsPublisher records sampled operational events.
type OpsPublisher interface {
	Track(ctx context.Context, event audit.Event)
}

// RevocationRules configures who may revoke an elevation besides nobody.
type RevocationRules struct {
	// AdminRoles may always revoke.
	AdminRoles []string
	// AllowSelfRevocation lets the subject revoke their own grant.
	AllowSelfRevocation bool
	// ApproverCanRevoke lets the original approver revoke.
	ApproverCanRevoke bool
}

// Config carries the manager's behavioral switches.
type Config struct {
	// UniversalMarkets verify under every market context.
	UniversalMarkets map[id.Market]bool
	// Revocation authorization rules.
	Revocation RevocationRules
}

// Manager orchestrates the elevation lifecycle. All collaborators are
// injected interfaces; the manager holds no locks of its own and is safe for
// concurrent use.
type Manager struct {
	store      store.Store
	policies   PolicyGate
	privacy    policy.PrivacyRules
	mfa        MFAGate
	approver   Approver
	signer     EvidenceSigner
	compliance CompliancePublisher
	security   SecurityPublisher
	ops        OpsPublisher
	sink       audit.Store
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	cfg        Config
}

// Deps bundles the manager's collaborators.
type Deps struct {
	Store      store.Store
	Policies   PolicyGate
	Privacy    policy.PrivacyRules
	MFA        MFAGate
	Approver   Approver
	Signer     EvidenceSigner
	Compliance CompliancePublisher
	Security   SecurityPublisher
	Ops        OpsPublisher
	Sink       audit.Store
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Config     Config
}

// NewManager constructs the elevation manager.
func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      deps.Store,
		policies:   deps.Policies,
		privacy:    deps.Privacy,
		mfa:        deps.MFA,
		approver:   deps.Approver,
		signer:     deps.Signer,
		compliance: deps.Compliance,
		security:   deps.Security,
		ops:        deps.Ops,
		sink:       deps.Sink,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		tracer:     otel.Tracer("keystone/elevation"),
		cfg:        deps.Config,
	}
}

// RequestElevation takes a request through the full pipeline. When step-up
// is required the request aborts with ErrMFARequired; callers then retry
// through RequestElevationWithMFA.
func (m *Manager) RequestElevation(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error) {
	return m.request(ctx, request, nil)
}

// RequestElevationWithMFA runs the same pipeline but, when step-up is
// required, issues a challenge and verifies the caller-supplied token before
// proceeding to approval.
func (m *Manager) RequestElevationWithMFA(ctx context.Context, request models.ElevationRequest, mfaToken string) (models.ElevationApproval, error) {
	return m.request(ctx, request, &mfaToken)
}

func (m *Manager) request(ctx context.Context, request models.ElevationRequest, mfaToken *string) (models.ElevationApproval, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "elevation.request")
	defer span.End()
	defer func() { m.metrics.ObserveRequestLatency(time.Since(start)) }()

	request.Roles = platformstrings.DedupeAndTrim(request.Roles)
	request.Scopes = platformstrings.DedupeAndTrim(request.Scopes)

	if err := request.Validate(); err != nil {
		m.denied(ctx, request, "invalid_request", err.Error())
		return models.ElevationApproval{}, err
	}

	privacyAssessment, err := m.privacy.Assess(request.DataCategories, request.Market,
		requestcontext.Purpose(ctx), requestcontext.Retention(ctx))
	if err != nil {
		m.denied(ctx, request, "invalid_request", err.Error())
		return models.ElevationApproval{}, err
	}

	// Checkpoint: request scope.
	decision, err := m.policies.Evaluate(ctx, policy.CheckpointRequest, request.Market, m.requestInput(ctx, request))
	if err != nil {
		return models.ElevationApproval{}, m.failed(ctx, request, "request policy evaluation", err)
	}
	if !decision.Allowed {
		m.denied(ctx, request, "policy", joinReasons(decision.Reasons))
		return models.ElevationApproval{}, &PolicyDeniedError{Checkpoint: policy.CheckpointRequest, Reasons: decision.Reasons}
	}

	// Step-up gate.
	mfaVerified, challengeID, err := m.stepUp(ctx, request, privacyAssessment.MFAMandatory, mfaToken)
	if err != nil {
		return models.ElevationApproval{}, err
	}

	// Checkpoint: approval scope. Conditions may clamp the grant.
	approvalDecision, err := m.policies.Evaluate(ctx, policy.CheckpointApproval, request.Market, m.approvalInput(ctx, request))
	if err != nil {
		return models.ElevationApproval{}, m.failed(ctx, request, "approval policy evaluation", err)
	}
	if !approvalDecision.Allowed {
		m.denied(ctx, request, "policy", joinReasons(approvalDecision.Reasons))
		return models.ElevationApproval{}, &PolicyDeniedError{Checkpoint: policy.CheckpointApproval, Reasons: approvalDecision.Reasons}
	}

	conditions := approvalDecision.Conditions
	if maxDuration, ok := policy.MaxDuration(conditions); ok && request.Duration > maxDuration {
		m.denied(ctx, request, "duration_exceeded",
			fmt.Sprintf("requested %s against cap %s", request.Duration, maxDuration))
		return models.ElevationApproval{}, fmt.Errorf("requested %s against policy cap %s: %w",
			request.Duration, maxDuration, ErrDurationExceeded)
	}
	if policy.RequireMFA(conditions) && !mfaVerified {
		m.denied(ctx, request, "mfa_required", "approval policy forces step-up")
		return models.ElevationApproval{}, fmt.Errorf("approval policy forces step-up: %w", ErrMFARequired)
	}

	vetted := request
	if allowed, ok := policy.StringSet(conditions, policy.ConditionAllowedScopes); ok {
		vetted.Scopes = policy.IntersectScopes(request.Scopes, allowed)
	}

	// Sign-off.
	approval, err := m.approver.Approve(ctx, vetted)
	if err != nil {
		m.denied(ctx, request, denialLabel(err), err.Error())
		return models.ElevationApproval{}, err
	}

	// Assemble the grant. The store write below is the single commit point;
	// nothing before it persists state.
	approval.ElevationID = id.NewElevationID()
	approval.AuditMetadata = m.buildAuditMetadata(conditions, mfaVerified, challengeID, privacyAssessment)

	if m.signer != nil {
		ref, err := m.signer.Sign(ctx, approval)
		if err != nil {
			return models.ElevationApproval{}, m.failed(ctx, request, "evidence signing", err)
		}
		approval.EvidenceRef = ref
	}

	token, err := mintToken()
	if err != nil {
		return models.ElevationApproval{}, m.failed(ctx, request, "token minting", err)
	}
	approval.Token = token

	record := m.buildRecord(request, approval)

	// The Requested event is regulatory evidence of intent; it must land
	// before the grant exists.
	requested := m.lifecycleEvent(ctx, audit.SubtypeElevationRequested, record, "requested")
	requested.Details["justification"] = request.Justification
	if err := m.compliance.Emit(ctx, requested); err != nil {
		return models.ElevationApproval{}, m.failed(ctx, request, "compliance audit", err)
	}

	if err := m.store.Create(ctx, token, record); err != nil {
		return models.ElevationApproval{}, m.failed(ctx, request, "record persistence", err)
	}

	// Post-commit: the grant stands even if audit or notification delivery
	// fails; a single attempt each, surfaced through logs and metrics.
	approved := m.lifecycleEvent(ctx, audit.SubtypeElevationApproved, record, "approved")
	approved.RelatedActorID = approval.ApproverID.String()
	approved.Details["automatic"] = approval.Automatic
	approved.Details["token_fingerprint"] = tokenFingerprint(token)
	if err := m.compliance.Emit(ctx, approved); err != nil {
		m.logger.ErrorContext(ctx, "approved event emission failed",
			"elevation_id", approval.ElevationID,
			"error", err,
		)
	}

	if approval.Automatic {
		emergency := m.lifecycleEvent(ctx, audit.SubtypeElevationApproved, record, "auto_approved")
		emergency.Severity = audit.SeverityWarning
		emergency.Reason = "emergency access auto-approved"
		m.security.Emit(emergency)
	}

	m.notify(ctx, request, approval)

	m.metrics.IncRequest("approved")
	m.metrics.ObserveGrantDuration(approval.ExpiresAt.Sub(approval.ApprovedAt))
	m.logger.InfoContext(ctx, "elevation approved",
		"elevation_id", approval.ElevationID,
		"requester_id", request.RequesterID,
		"market", request.Market,
		"automatic", approval.Automatic,
		"expires_at", approval.ExpiresAt,
	)
	return approval, nil
}

// stepUp resolves the step-up obligation and, when a token was supplied,
// runs the challenge/verify exchange. Returns whether step-up was completed
// and the challenge ID when one was issued.
func (m *Manager) stepUp(ctx context.Context, request models.ElevationRequest, privacyMandatory bool, mfaToken *string) (bool, string, error) {
	required, reason, err := m.mfa.CheckMFARequirement(ctx, request.RequesterID)
	if err != nil {
		if errors.Is(err, mfa.ErrNotEnrolled) {
			m.denied(ctx, request, "mfa_not_configured", err.Error())
			return false, "", fmt.Errorf("%s: %w", err, ErrMFANotConfigured)
		}
		return false, "", m.failed(ctx, request, "step-up requirement check", err)
	}
	if privacyMandatory && !required {
		required = true
		reason = "sensitive data categories mandate step-up"
	}
	if !required {
		return false, "", nil
	}
	if mfaToken == nil {
		m.denied(ctx, request, "mfa_required", reason)
		return false, "", fmt.Errorf("%s: %w", reason, ErrMFARequired)
	}

	challengeID, err := m.mfa.Challenge(ctx, request.RequesterID)
	if err != nil {
		// Enrollment can first surface here: a lenient market policy skips
		// the status check, but privacy-mandated step-up still needs a factor.
		if errors.Is(err, mfa.ErrNotEnrolled) {
			m.denied(ctx, request, "mfa_not_configured", "no enrolled factor for mandatory step-up")
			return false, "", fmt.Errorf("%s: %w", err, ErrMFANotConfigured)
		}
		return false, "", m.failed(ctx, request, "step-up challenge", err)
	}
	challenged := m.requestEvent(ctx, audit.SubtypeMFAChallenged, request, "challenged")
	challenged.Details = map[string]any{"challenge_id": challengeID}
	m.security.Emit(challenged)

	if err := m.mfa.Verify(ctx, request.RequesterID, challengeID, *mfaToken); err != nil {
		if errors.Is(err, mfa.ErrVerificationFailed) {
			failedEvent := m.requestEvent(ctx, audit.SubtypeMFAFailed, request, "rejected")
			failedEvent.Severity = audit.SeverityWarning
			failedEvent.Details = map[string]any{"challenge_id": challengeID}
			m.security.Emit(failedEvent)
			m.denied(ctx, request, "mfa_failed", "step-up token rejected")
			return false, "", fmt.Errorf("challenge %s: %w", challengeID, ErrMFAFailed)
		}
		return false, "", m.failed(ctx, request, "step-up verification", err)
	}
	return true, challengeID, nil
}

func (m *Manager) buildAuditMetadata(conditions map[string]any, mfaVerified bool, challengeID string, privacyAssessment policy.PrivacyAssessment) map[string]any {
	metadata := map[string]any{
		"mfa.verified": mfaVerified,
	}
	if challengeID != "" {
		metadata["mfa.challenge_id"] = challengeID
	}
	if len(conditions) > 0 {
		metadata["policy.conditions"] = conditions
	}
	privacyAssessment.Annotate(metadata)
	return metadata
}

func (m *Manager) buildRecord(request models.ElevationRequest, approval models.ElevationApproval) models.ElevationRecord {
	return models.ElevationRecord{
		ElevationID:   approval.ElevationID,
		RequesterID:   request.RequesterID,
		ApproverID:    approval.ApproverID,
		TenantID:      request.TenantID,
		Market:        request.Market,
		BusinessUnit:  request.BusinessUnit,
		Justification: request.Justification,
		GrantedRoles:  approval.GrantedRoles,
		GrantedScopes: approval.GrantedScopes,
		ApprovedAt:    approval.ApprovedAt,
		ExpiresAt:     approval.ExpiresAt,
		Status:        models.StatusActive,
		EvidenceRef:   approval.EvidenceRef,
		AuditMetadata: approval.AuditMetadata,
	}
}

// notify delivers request and approval notifications in parallel. Failures
// are logged; they never unwind the grant.
func (m *Manager) notify(ctx context.Context, request models.ElevationRequest, approval models.ElevationApproval) {
	if m.notifier == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.notifier.NotifyRequested(gctx, request) })
	g.Go(func() error { return m.notifier.NotifyApproved(gctx, approval) })
	if err := g.Wait(); err != nil {
		m.logger.WarnContext(ctx, "elevation notification failed",
			"elevation_id", approval.ElevationID,
			"error", err,
		)
	}
}

// requestInput is the policy-evaluator input at the request checkpoint.
func (m *Manager) requestInput(ctx context.Context, request models.ElevationRequest) map[string]any {
	return map[string]any{
		"requester_id":  request.RequesterID.String(),
		"tenant_id":     request.TenantID.String(),
		"market":        string(request.Market),
		"business_unit": request.BusinessUnit,
		"justification": request.Justification,
		"roles":         request.Roles,
		"scopes":        request.Scopes,
		"duration":      request.Duration.String(),
		"emergency":     request.Emergency,
		"risk_level":    requestcontext.RiskLevel(ctx).String(),
	}
}

// approvalInput is the policy-evaluator input at the approval checkpoint.
// Same shape as the request input; the checkpoints differ by policy
// identifier, not by contract.
func (m *Manager) approvalInput(ctx context.Context, request models.ElevationRequest) map[string]any {
	input := m.requestInput(ctx, request)
	if !request.TargetApprover.IsNil() {
		input["target_approver"] = request.TargetApprover.String()
	}
	return input
}

// denied records a denial outcome: a compliance event, a security event, and
// metrics. Best-effort; the denial error itself carries the caller-facing
// detail.
func (m *Manager) denied(ctx context.Context, request models.ElevationRequest, label, detail string) {
	event := m.requestEvent(ctx, audit.SubtypeElevationDenied, request, "denied")
	event.Reason = detail
	event.Severity = audit.SeverityWarning
	if err := m.compliance.Emit(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "denied event emission failed",
			"requester_id", request.RequesterID,
			"error", err,
		)
	}
	m.security.Emit(event)
	m.metrics.IncRequest("denied")
	m.metrics.IncDenial(label)
}

// failed wraps an infrastructure fault, records it, and scopes it to this
// call.
func (m *Manager) failed(ctx context.Context, request models.ElevationRequest, stage string, err error) error {
	m.logger.ErrorContext(ctx, "elevation request failed",
		"stage", stage,
		"requester_id", request.RequesterID,
		"error", err,
	)
	event := m.requestEvent(ctx, audit.SubtypeElevationDenied, request, "failed")
	event.Reason = stage
	event.Severity = audit.SeverityWarning
	m.security.Emit(event)
	m.metrics.IncRequest("failed")
	return dErrors.Wrap(dErrors.CodeInternal, stage+" failed", err)
}

// requestEvent builds an audit event for a pre-record stage, where no
// elevation ID exists yet.
func (m *Manager) requestEvent(ctx context.Context, subtype audit.Subtype, request models.ElevationRequest, result string) audit.Event {
	return audit.Event{
		Type:         "privilege_elevation",
		Subtype:      subtype,
		Timestamp:    requestcontext.Now(ctx),
		ActorID:      request.RequesterID.String(),
		TenantID:     request.TenantID,
		Market:       request.Market,
		BusinessUnit: request.BusinessUnit,
		ResourceType: "elevation",
		Action:       "request",
		Result:       result,
		Severity:     audit.SeverityInfo,
		Client:       m.client(ctx),
	}
}

// lifecycleEvent builds an audit event for a stage with an assigned
// elevation ID, carrying the record's audit metadata and compliance tags.
func (m *Manager) lifecycleEvent(ctx context.Context, subtype audit.Subtype, record models.ElevationRecord, result string) audit.Event {
	details := map[string]any{}
	for k, v := range record.AuditMetadata {
		details[k] = v
	}
	event := audit.Event{
		Type:         "privilege_elevation",
		Subtype:      subtype,
		Timestamp:    requestcontext.Now(ctx),
		ActorID:      record.RequesterID.String(),
		TenantID:     record.TenantID,
		Market:       record.Market,
		BusinessUnit: record.BusinessUnit,
		ResourceID:   record.ElevationID.String(),
		ResourceType: "elevation",
		Action:       string(subtype),
		Result:       result,
		Severity:     audit.SeverityInfo,
		Client:       m.client(ctx),
		Details:      details,
	}
	// Metadata that crossed a JSON store roundtrip decodes as []any.
	switch regs := details["privacy.regulations"].(type) {
	case []string:
		event.ComplianceTags = regs
	case []any:
		for _, reg := range regs {
			if s, ok := reg.(string); ok {
				event.ComplianceTags = append(event.ComplianceTags, s)
			}
		}
	}
	if retention, ok := details["privacy.retention"].(string); ok {
		if d, err := time.ParseDuration(retention); err == nil {
			event.RetentionPeriod = d
		}
	}
	return event
}

func (m *Manager) client(ctx context.Context) audit.ClientSnapshot {
	return audit.NewClientSnapshot(
		requestcontext.ClientIP(ctx),
		requestcontext.UserAgent(ctx),
		requestcontext.RequestID(ctx),
	)
}

func denialLabel(err error) string {
	var policyDenied *PolicyDeniedError
	switch {
	case errors.Is(err, ErrDurationExceeded):
		return "duration_exceeded"
	case errors.Is(err, ErrForbiddenScope):
		return "forbidden_scope"
	case errors.As(err, &policyDenied):
		return "policy"
	default:
		return "approver_failed"
	}
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "policy denied"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
