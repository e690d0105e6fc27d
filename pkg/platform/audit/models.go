package audit

import (
	"time"

	"github.com/google/uuid"

	id "keystone/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention (e.g., 7 years).
	// Examples: elevation approvals, denials, revocations, privacy-tagged
	// grants.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. These feed into SIEM systems and alerting pipelines.
	// Examples: verification attempts, isolation violations, MFA failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	// Examples: successful verifications, usage reports.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for security routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Subtype identifies the specific elevation lifecycle action an event
// records. The sink is queryable by subtype.
type Subtype string

const (
	SubtypeElevationRequested Subtype = "elevation_requested"
	SubtypeElevationApproved  Subtype = "elevation_approved"
	SubtypeElevationDenied    Subtype = "elevation_denied"
	SubtypeElevationVerified  Subtype = "elevation_verified"
	SubtypeElevationUsed      Subtype = "elevation_used"
	SubtypeElevationRevoked   Subtype = "elevation_revoked"
	SubtypeElevationExpired   Subtype = "elevation_expired"
	SubtypeMFAChallenged      Subtype = "mfa_challenged"
	SubtypeMFAFailed          Subtype = "mfa_failed"
)

// subtypeCategories maps each subtype to its category.
// Compliance: legal/regulatory significance, long retention required.
// Security: security monitoring, SIEM integration, alerting.
// Operations: routine activity, can be sampled.
var subtypeCategories = map[Subtype]EventCategory{
	SubtypeElevationRequested: CategoryCompliance,
	SubtypeElevationApproved:  CategoryCompliance,
	SubtypeElevationDenied:    CategoryCompliance,
	SubtypeElevationRevoked:   CategoryCompliance,

	SubtypeElevationVerified: CategorySecurity,
	SubtypeMFAChallenged:     CategorySecurity,
	SubtypeMFAFailed:         CategorySecurity,

	SubtypeElevationUsed:    CategoryOperations,
	SubtypeElevationExpired: CategoryOperations,
}

// Category returns the EventCategory for this subtype.
// Unknown subtypes default to CategoryOperations.
func (s Subtype) Category() EventCategory {
	if cat, ok := subtypeCategories[s]; ok {
		return cat
	}
	return CategoryOperations
}

// ClientSnapshot captures request-origin metadata for forensic replay.
// Browser/OS/Mobile are derived from the user agent at construction time so
// consumers never re-parse.
type ClientSnapshot struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Mobile    bool   `json:"mobile,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Event is the compliance-grade projection persisted to the audit sink.
// Immutable and append-only; queryable by resource, actor, time range,
// subtype, and market.
type Event struct {
	ID        uuid.UUID
	Type      string // coarse family, e.g. "privilege_elevation"
	Subtype   Subtype
	Timestamp time.Time

	// Actors. ActorID is who performed the action; RelatedActorID is the
	// other party when relevant (approver on approvals, subject on
	// revocations).
	ActorID        string
	RelatedActorID string

	// Isolation scope.
	TenantID     id.TenantID
	Market       id.Market
	BusinessUnit string

	// What was acted on.
	ResourceID   string
	ResourceType string
	Action       string
	Result       string
	Reason       string

	Severity Severity
	Client   ClientSnapshot

	// ComplianceTags names the regulatory frameworks this event is evidence
	// for (e.g. "gdpr", "sox"). RetentionPeriod and IntegrityHash are
	// regulatory retention/integrity metadata; zero values mean the sink's
	// defaults apply.
	ComplianceTags  []string
	RetentionPeriod time.Duration
	IntegrityHash   string

	// Details carries transition-specific structured metadata (policy
	// conditions, MFA state, privacy annotations) verbatim.
	Details map[string]any
}

// Category returns the routing category for the event, derived from its
// subtype.
func (e Event) Category() EventCategory {
	return e.Subtype.Category()
}
