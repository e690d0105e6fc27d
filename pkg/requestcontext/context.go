// Package requestcontext provides HTTP-independent context accessors for
// request-scoped ambient values.
//
// This package defines context keys and getter/setter functions for values
// that are typically set by the caller's request-handling layer (gateway
// middleware) but consumed by services. The elevation core reads tenant,
// market, business unit, risk level, and privacy context from here; it never
// originates them.
//
// Usage in services (read values):
//
//	tenant := requestcontext.TenantID(ctx)
//	market := requestcontext.Market(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithTenantID(ctx, tenantID)
//	ctx = requestcontext.WithMarket(ctx, market)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "keystone/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey       struct{}
	tenantIDKey      struct{}
	marketKey        struct{}
	businessUnitKey  struct{}
	riskLevelKey     struct{}
	actorRolesKey    struct{}
	purposeKey       struct{}
	retentionKey     struct{}
	clientIPKey      struct{}
	userAgentKey     struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
	mfaChallengeKey  struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActorID      = actorIDKey{}
	ContextKeyTenantID     = tenantIDKey{}
	ContextKeyMarket       = marketKey{}
	ContextKeyBusinessUnit = businessUnitKey{}
	ContextKeyRiskLevel    = riskLevelKey{}
	ContextKeyActorRoles   = actorRolesKey{}
	ContextKeyPurpose      = purposeKey{}
	ContextKeyRetention    = retentionKey{}
	ContextKeyClientIP     = clientIPKey{}
	ContextKeyUserAgent    = userAgentKey{}
	ContextKeyRequestID    = requestIDKey{}
	ContextKeyRequestTime  = requestTimeKey{}
	ContextKeyMFAChallenge = mfaChallengeKey{}
)

// -----------------------------------------------------------------------------
// Identity and isolation context
// -----------------------------------------------------------------------------

// ActorID retrieves the authenticated actor from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.UserID {
	if actor, ok := ctx.Value(ContextKeyActorID).(id.UserID); ok {
		return actor
	}
	return id.UserID{}
}

// WithActorID injects the authenticated actor into the context.
func WithActorID(ctx context.Context, actor id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actor)
}

// TenantID retrieves the caller's tenant from the context.
// Returns the zero value (nil UUID) if not set.
func TenantID(ctx context.Context) id.TenantID {
	if tenant, ok := ctx.Value(ContextKeyTenantID).(id.TenantID); ok {
		return tenant
	}
	return id.TenantID{}
}

// WithTenantID injects the caller's tenant into the context.
func WithTenantID(ctx context.Context, tenant id.TenantID) context.Context {
	return context.WithValue(ctx, ContextKeyTenantID, tenant)
}

// Market retrieves the caller's market (jurisdiction) from the context.
// Returns the empty market if not set.
func Market(ctx context.Context) id.Market {
	if market, ok := ctx.Value(ContextKeyMarket).(id.Market); ok {
		return market
	}
	return ""
}

// WithMarket injects the caller's market into the context.
func WithMarket(ctx context.Context, market id.Market) context.Context {
	return context.WithValue(ctx, ContextKeyMarket, market)
}

// BusinessUnit retrieves the caller's business unit tag from the context.
func BusinessUnit(ctx context.Context) string {
	if bu, ok := ctx.Value(ContextKeyBusinessUnit).(string); ok {
		return bu
	}
	return ""
}

// WithBusinessUnit injects the caller's business unit into the context.
func WithBusinessUnit(ctx context.Context, bu string) context.Context {
	return context.WithValue(ctx, ContextKeyBusinessUnit, bu)
}

// RiskLevel retrieves the operation risk level from the context.
// Defaults to medium when the request-handling layer did not classify.
func RiskLevel(ctx context.Context) id.RiskLevel {
	if risk, ok := ctx.Value(ContextKeyRiskLevel).(id.RiskLevel); ok {
		return risk
	}
	return id.RiskMedium
}

// WithRiskLevel injects the operation risk level into the context.
func WithRiskLevel(ctx context.Context, risk id.RiskLevel) context.Context {
	return context.WithValue(ctx, ContextKeyRiskLevel, risk)
}

// ActorRoles retrieves the authenticated actor's platform roles from the
// context. Revocation authorization checks these against the configured
// admin-role list.
func ActorRoles(ctx context.Context) []string {
	if roles, ok := ctx.Value(ContextKeyActorRoles).([]string); ok {
		return roles
	}
	return nil
}

// WithActorRoles injects the actor's platform roles into the context.
func WithActorRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, ContextKeyActorRoles, roles)
}

// -----------------------------------------------------------------------------
// Privacy context
// -----------------------------------------------------------------------------

// Purpose retrieves the declared processing purpose from the context.
// Required when the request touches sensitive data categories.
func Purpose(ctx context.Context) string {
	if purpose, ok := ctx.Value(ContextKeyPurpose).(string); ok {
		return purpose
	}
	return ""
}

// WithPurpose injects a processing purpose into the context.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, ContextKeyPurpose, purpose)
}

// Retention retrieves the declared retention period from the context.
// Zero means not declared.
func Retention(ctx context.Context) time.Duration {
	if retention, ok := ctx.Value(ContextKeyRetention).(time.Duration); ok {
		return retention
	}
	return 0
}

// WithRetention injects a retention period into the context.
func WithRetention(ctx context.Context, retention time.Duration) context.Context {
	return context.WithValue(ctx, ContextKeyRetention, retention)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent, correlation)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client IP address into a context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects the User-Agent into a context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ContextKeyUserAgent, ua)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return rid
	}
	return ""
}

// WithRequestID injects a correlation ID into a context.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, rid)
}

// -----------------------------------------------------------------------------
// Time and step-up
// -----------------------------------------------------------------------------

// Now returns the request time from the context, falling back to the wall
// clock. Tests inject fixed times with WithTime to make expiry laws
// deterministic.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed request time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// MFAChallengeID retrieves an in-flight step-up challenge ID, set by the
// handler between challenge issuance and token verification.
func MFAChallengeID(ctx context.Context) string {
	if cid, ok := ctx.Value(ContextKeyMFAChallenge).(string); ok {
		return cid
	}
	return ""
}

// WithMFAChallengeID injects a step-up challenge ID into a context.
func WithMFAChallengeID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, ContextKeyMFAChallenge, cid)
}
