package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"
)

// IdentityClaims is what the token validator extracts from a bearer token.
// Tenant and market are part of identity: they scope every downstream
// operation and are never taken from request bodies.
type IdentityClaims struct {
	UserID       id.UserID
	TenantID     id.TenantID
	Market       id.Market
	BusinessUnit string
	Roles        []string
	RiskLevel    id.RiskLevel
}

// TokenValidator validates a bearer token and returns the caller's identity.
type TokenValidator interface {
	ValidateToken(tokenString string) (*IdentityClaims, error)
}

// RequireAuth rejects requests without a valid bearer token and seeds the
// request context with the caller's identity and isolation scope.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActorID(ctx, claims.UserID)
			ctx = requestcontext.WithTenantID(ctx, claims.TenantID)
			ctx = requestcontext.WithMarket(ctx, claims.Market)
			ctx = requestcontext.WithBusinessUnit(ctx, claims.BusinessUnit)
			ctx = requestcontext.WithActorRoles(ctx, claims.Roles)
			if claims.RiskLevel != "" {
				ctx = requestcontext.WithRiskLevel(ctx, claims.RiskLevel)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
