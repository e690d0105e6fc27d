package models

import (
	"time"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

// ElevationRequest is a principal's ask for temporary escalation. It is
// immutable once submitted; the service layer validates it and never writes
// back into it.
type ElevationRequest struct {
	RequesterID    id.UserID
	TenantID       id.TenantID
	Market         id.Market
	BusinessUnit   string
	Justification  string
	Roles          []string
	Scopes         []string
	Duration       time.Duration
	Emergency      bool
	TargetApprover id.UserID         // optional; nil UUID means "route by policy"
	DataCategories []id.DataCategory // optional; sensitive categories trigger privacy handling
}

// Validate enforces the submission invariants. Privacy-specific requirements
// (purpose, retention) are layered on by the policy gate, not here.
func (r *ElevationRequest) Validate() error {
	if r.RequesterID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "requester is required")
	}
	if r.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant is required")
	}
	if r.Market == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "market is required")
	}
	if r.Justification == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "justification is required")
	}
	if len(r.Roles) == 0 && len(r.Scopes) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one role or scope is required")
	}
	if r.Duration <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "duration must be positive")
	}
	return nil
}

// Sensitive reports whether the request touches any of the given sensitive
// data categories.
func (r *ElevationRequest) Sensitive(sensitive map[id.DataCategory]bool) bool {
	for _, c := range r.DataCategories {
		if sensitive[c] {
			return true
		}
	}
	return false
}

// ElevationApproval is the outcome of a successful decision. Produced once,
// never mutated. GrantedRoles/GrantedScopes are never a superset of the
// request; duration may have been clamped below what was requested.
type ElevationApproval struct {
	ElevationID   id.ElevationID
	RequesterID   id.UserID
	ApproverID    id.UserID
	Automatic     bool
	ApprovedAt    time.Time
	ExpiresAt     time.Time
	GrantedRoles  []string
	GrantedScopes []string
	EvidenceRef   string
	// AuditMetadata carries policy conditions, MFA state, and privacy
	// annotations verbatim into the compliance trail.
	AuditMetadata map[string]any
	// Token is the opaque bearer credential for the elevation. It is handed
	// to the caller exactly once and never persisted in audit events.
	Token string
}

// Status is the lifecycle state of a stored elevation record.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// CanTransitionTo enforces the one-way lifecycle: Active may become Expired
// or Revoked; Expired and Revoked are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusActive {
		return false
	}
	return next == StatusExpired || next == StatusRevoked
}

// ElevationRecord is the durable store representation of a granted
// elevation.
//
// Invariants:
//   - Granted scopes are a subset of requested scopes intersected with
//     policy conditions (enforced at approval time, immutable after).
//   - Status transitions are one-way; Revoked and Expired are terminal.
//   - Expiry is authoritative by timestamp: a record whose ExpiresAt has
//     passed is treated as Expired regardless of the stored Status field.
type ElevationRecord struct {
	ElevationID   id.ElevationID
	RequesterID   id.UserID
	ApproverID    id.UserID
	TenantID      id.TenantID
	Market        id.Market
	BusinessUnit  string
	Justification string
	GrantedRoles  []string
	GrantedScopes []string
	ApprovedAt    time.Time
	ExpiresAt     time.Time
	Status        Status
	EvidenceRef   string
	AuditMetadata map[string]any

	// Revocation metadata; set exactly once when Status becomes revoked.
	RevokedBy     id.UserID
	RevokedReason string
	RevokedAt     time.Time
}

// ExpiredAt reports whether the record is expired by clock at the given
// instant, regardless of stored status staleness (lazy-expiry law).
func (r *ElevationRecord) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// EventType is the lifecycle transition an ElevationEvent records.
type EventType string

const (
	EventRequested EventType = "elevation_requested"
	EventApproved  EventType = "elevation_approved"
	EventDenied    EventType = "elevation_denied"
	EventUsed      EventType = "elevation_used"
	EventRevoked   EventType = "elevation_revoked"
	EventExpired   EventType = "elevation_expired"
)

// ElevationEvent is one lifecycle-transition record. Usage events carry the
// operation detail fields; other transitions leave them empty.
type ElevationEvent struct {
	Type         EventType
	ElevationID  id.ElevationID
	RequesterID  id.UserID
	TenantID     id.TenantID
	Market       id.Market
	BusinessUnit string
	Timestamp    time.Time

	// Transition-specific details.
	Reason    string // denial/revocation reason
	ActorID   id.UserID
	Operation string // Used: the elevated operation performed
	Resource  string // Used: target resource
	Namespace string // Used: namespace the operation ran in
	Result    string // Used: outcome reported by the caller
}
