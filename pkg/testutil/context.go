package testutil

import (
	"context"
	"net/http"
	"time"

	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated
// requests. Invalid IDs are silently ignored.
func WithActor(req *http.Request, actorID string) *http.Request {
	if parsed, err := id.ParseUserID(actorID); err == nil {
		return req.WithContext(requestcontext.WithActorID(req.Context(), parsed))
	}
	return req
}

// WithIsolation adds tenant and market scope to the request context.
func WithIsolation(req *http.Request, tenantID string, market string) *http.Request {
	ctx := req.Context()
	if parsed, err := id.ParseTenantID(tenantID); err == nil {
		ctx = requestcontext.WithTenantID(ctx, parsed)
	}
	if market != "" {
		ctx = requestcontext.WithMarket(ctx, id.Market(market))
	}
	return req.WithContext(ctx)
}

// WithRiskLevel sets the assessed risk level on the request context.
func WithRiskLevel(req *http.Request, risk id.RiskLevel) *http.Request {
	return req.WithContext(requestcontext.WithRiskLevel(req.Context(), risk))
}

// WithActorRoles sets the actor's platform roles on the request context.
func WithActorRoles(req *http.Request, roles ...string) *http.Request {
	return req.WithContext(requestcontext.WithActorRoles(req.Context(), roles))
}

// WithFrozenClock pins the request-scoped clock for deterministic expiry
// assertions.
func WithFrozenClock(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
