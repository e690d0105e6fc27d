package mfa

import (
	"context"
	"fmt"
	"log/slog"

	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"
)

// Gate decides whether an elevation needs step-up authentication and runs
// the challenge/verify exchange when it does.
type Gate struct {
	provider Provider
	policies Policies
	logger   *slog.Logger
}

// NewGate constructs the step-up gate.
func NewGate(provider Provider, policies Policies, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{provider: provider, policies: policies, logger: logger}
}

// CheckMFARequirement resolves the effective policy for the request's market
// and reports whether the user must complete a step-up challenge before the
// elevation can proceed. The market and risk level come from the request
// context; verification time is the context clock.
//
// Returns ErrNotEnrolled when step-up is mandatory, enrollment is enforced,
// and the user has no enrolled factor.
func (g *Gate) CheckMFARequirement(ctx context.Context, userID id.UserID) (bool, string, error) {
	market := requestcontext.Market(ctx)
	risk := requestcontext.RiskLevel(ctx)

	policy := g.policies.Resolve(market)
	requirement := policy.requirementFor(risk)
	if !requirement.Required {
		return false, "step-up not required for risk level " + risk.String(), nil
	}

	status, err := g.provider.GetStatus(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("mfa status for user %s: %w", userID, err)
	}

	if !status.Enabled {
		if policy.EnforceEnrollment {
			return false, "", fmt.Errorf("market %s requires enrollment for risk level %s: %w",
				market, risk, ErrNotEnrolled)
		}
		g.logger.WarnContext(ctx, "step-up skipped, user not enrolled",
			"user_id", userID,
			"market", market,
			"risk_level", risk,
		)
		return false, "user not enrolled and enrollment not enforced", nil
	}

	if requirement.AlwaysReverify {
		return true, "risk level " + risk.String() + " re-verifies at every elevation", nil
	}

	now := requestcontext.Now(ctx)
	if status.LastVerifiedAt.IsZero() || now.Sub(status.LastVerifiedAt) > policy.FreshnessWindow {
		return true, "last verification outside freshness window", nil
	}
	return false, "verification within freshness window", nil
}

// Challenge issues a step-up challenge of the market's configured type and
// returns its ID for the caller to complete.
func (g *Gate) Challenge(ctx context.Context, userID id.UserID) (string, error) {
	policy := g.policies.Resolve(requestcontext.Market(ctx))
	challengeID, err := g.provider.StartChallenge(ctx, userID, policy.ChallengeType)
	if err != nil {
		return "", fmt.Errorf("start %s challenge: %w", policy.ChallengeType, err)
	}
	return challengeID, nil
}

// Verify checks a submitted token against an outstanding challenge.
// Returns ErrVerificationFailed when the provider rejects the token.
func (g *Gate) Verify(ctx context.Context, userID id.UserID, challengeID, token string) error {
	ok, err := g.provider.VerifyToken(ctx, userID, challengeID, token)
	if err != nil {
		return fmt.Errorf("verify challenge %s: %w", challengeID, err)
	}
	if !ok {
		g.logger.WarnContext(ctx, "step-up token rejected",
			"user_id", userID,
			"challenge_id", challengeID,
		)
		return ErrVerificationFailed
	}
	return nil
}
