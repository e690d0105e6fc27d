package mfa

import (
	"time"

	id "keystone/pkg/domain"
)

// Requirement declares the step-up obligation for one risk level.
// The two flags are explicit rather than inferred from the freshness window:
// Required alone means a sufficiently recent verification is accepted, while
// AlwaysReverify demands a fresh challenge at elevation time no matter how
// recently the user verified.
type Requirement struct {
	Required       bool
	AlwaysReverify bool
}

// Policy is the effective step-up policy for one market.
type Policy struct {
	// PerRisk maps each risk level to its requirement. Absent levels are
	// treated as not required.
	PerRisk map[id.RiskLevel]Requirement
	// ChallengeType selects the challenge issued when verification is needed.
	ChallengeType string
	// FreshnessWindow is the maximum age of a prior verification still
	// accepted, for levels without AlwaysReverify.
	FreshnessWindow time.Duration
	// EnforceEnrollment denies elevation outright when step-up is mandatory
	// but the user has no enrolled factor.
	EnforceEnrollment bool
}

func (p Policy) requirementFor(risk id.RiskLevel) Requirement {
	return p.PerRisk[risk]
}

// Policies holds per-market step-up policies with a default fallback for
// markets without a dedicated entry.
type Policies struct {
	ByMarket map[id.Market]Policy
	Default  Policy
}

// Resolve returns the policy for a market, falling back to the default.
func (p Policies) Resolve(market id.Market) Policy {
	if policy, ok := p.ByMarket[market]; ok {
		return policy
	}
	return p.Default
}

// DefaultPolicies is the baseline configuration: high and critical risk
// re-verify at every elevation, medium risk accepts a verification newer
// than five minutes, low risk needs no step-up.
func DefaultPolicies() Policies {
	return Policies{
		Default: Policy{
			PerRisk: map[id.RiskLevel]Requirement{
				id.RiskMedium:   {Required: true},
				id.RiskHigh:     {Required: true, AlwaysReverify: true},
				id.RiskCritical: {Required: true, AlwaysReverify: true},
			},
			ChallengeType:     "totp",
			FreshnessWindow:   5 * time.Minute,
			EnforceEnrollment: true,
		},
	}
}
