package handler

import (
	"time"

	"keystone/pkg/platform/audit"

	"keystone/internal/elevation/models"
)

// ApprovalResponse is the wire form of a granted elevation. The token is
// returned exactly once here and appears nowhere else.
type ApprovalResponse struct {
	ElevationID   string         `json:"elevation_id"`
	ApproverID    string         `json:"approver_id"`
	Automatic     bool           `json:"automatic"`
	ApprovedAt    time.Time      `json:"approved_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	GrantedRoles  []string       `json:"granted_roles,omitempty"`
	GrantedScopes []string       `json:"granted_scopes,omitempty"`
	EvidenceRef   string         `json:"evidence_ref"`
	AuditMetadata map[string]any `json:"audit_metadata,omitempty"`
	Token         string         `json:"token"`
}

func toApprovalResponse(a models.ElevationApproval) ApprovalResponse {
	return ApprovalResponse{
		ElevationID:   a.ElevationID.String(),
		ApproverID:    a.ApproverID.String(),
		Automatic:     a.Automatic,
		ApprovedAt:    a.ApprovedAt,
		ExpiresAt:     a.ExpiresAt,
		GrantedRoles:  a.GrantedRoles,
		GrantedScopes: a.GrantedScopes,
		EvidenceRef:   a.EvidenceRef,
		AuditMetadata: a.AuditMetadata,
		Token:         a.Token,
	}
}

// VerifyResponse reports the outcome of a token check. Grant details are
// present only for valid tokens.
type VerifyResponse struct {
	Valid         bool       `json:"valid"`
	Reason        string     `json:"reason,omitempty"`
	ElevationID   string     `json:"elevation_id,omitempty"`
	GrantedRoles  []string   `json:"granted_roles,omitempty"`
	GrantedScopes []string   `json:"granted_scopes,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func toVerifyResponse(valid bool, reason string, record *models.ElevationRecord) VerifyResponse {
	resp := VerifyResponse{Valid: valid, Reason: reason}
	if valid && record != nil {
		resp.ElevationID = record.ElevationID.String()
		resp.GrantedRoles = record.GrantedRoles
		resp.GrantedScopes = record.GrantedScopes
		expires := record.ExpiresAt
		resp.ExpiresAt = &expires
	}
	return resp
}

// AuditEventResponse is the wire form of one audit trail entry.
type AuditEventResponse struct {
	EventID       string         `json:"event_id"`
	Subtype       string         `json:"subtype"`
	Timestamp     time.Time      `json:"timestamp"`
	ActorID       string         `json:"actor_id,omitempty"`
	TenantID      string         `json:"tenant_id,omitempty"`
	Market        string         `json:"market,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Action        string         `json:"action,omitempty"`
	Result        string         `json:"result,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	ComplianceTag []string       `json:"compliance_tags,omitempty"`
}

func toAuditResponses(events []audit.Event) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			EventID:       e.ID.String(),
			Subtype:       string(e.Subtype),
			Timestamp:     e.Timestamp,
			ActorID:       e.ActorID,
			TenantID:      e.TenantID.String(),
			Market:        string(e.Market),
			ResourceID:    e.ResourceID,
			Action:        e.Action,
			Result:        e.Result,
			Reason:        e.Reason,
			Severity:      string(e.Severity),
			Details:       e.Details,
			ComplianceTag: e.ComplianceTags,
		})
	}
	return out
}
