package mfa

import (
	"encoding/json"
	"fmt"
	"time"

	id "keystone/pkg/domain"
)

// policiesWire is the JSON configuration form of the per-market step-up
// tables:
//
//	{
//	  "default": {"freshness_window": "10m"},
//	  "markets": {
//	    "brazil": {
//	      "challenge_type": "sms",
//	      "enforce_enrollment": false,
//	      "per_risk": {"high": {"required": true, "always_reverify": true}}
//	    }
//	  }
//	}
//
// Omitted fields inherit from the baseline default policy; a per_risk table,
// when present, replaces the baseline table whole.
type policiesWire struct {
	Default *policyWire           `json:"default"`
	Markets map[string]policyWire `json:"markets"`
}

type policyWire struct {
	PerRisk           map[string]requirementWire `json:"per_risk"`
	ChallengeType     string                     `json:"challenge_type"`
	FreshnessWindow   string                     `json:"freshness_window"`
	EnforceEnrollment *bool                      `json:"enforce_enrollment"`
}

type requirementWire struct {
	Required       bool `json:"required"`
	AlwaysReverify bool `json:"always_reverify"`
}

// ParsePolicies builds per-market step-up policies from their JSON
// configuration form, layered over DefaultPolicies. An empty input yields
// the defaults unchanged.
func ParsePolicies(raw string) (Policies, error) {
	policies := DefaultPolicies()
	if raw == "" {
		return policies, nil
	}

	var wire policiesWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Policies{}, fmt.Errorf("parse mfa policies: %w", err)
	}

	if wire.Default != nil {
		merged, err := mergePolicy(policies.Default, *wire.Default)
		if err != nil {
			return Policies{}, fmt.Errorf("default policy: %w", err)
		}
		policies.Default = merged
	}
	if len(wire.Markets) > 0 {
		policies.ByMarket = make(map[id.Market]Policy, len(wire.Markets))
		for key, overlay := range wire.Markets {
			market, err := id.ParseMarket(key)
			if err != nil {
				return Policies{}, fmt.Errorf("mfa policies: %w", err)
			}
			merged, err := mergePolicy(policies.Default, overlay)
			if err != nil {
				return Policies{}, fmt.Errorf("market %s: %w", market, err)
			}
			policies.ByMarket[market] = merged
		}
	}
	return policies, nil
}

func mergePolicy(base Policy, overlay policyWire) (Policy, error) {
	if overlay.ChallengeType != "" {
		base.ChallengeType = overlay.ChallengeType
	}
	if overlay.FreshnessWindow != "" {
		window, err := time.ParseDuration(overlay.FreshnessWindow)
		if err != nil {
			return Policy{}, fmt.Errorf("freshness window: %w", err)
		}
		base.FreshnessWindow = window
	}
	if overlay.EnforceEnrollment != nil {
		base.EnforceEnrollment = *overlay.EnforceEnrollment
	}
	if overlay.PerRisk != nil {
		perRisk := make(map[id.RiskLevel]Requirement, len(overlay.PerRisk))
		for raw, req := range overlay.PerRisk {
			risk, err := id.ParseRiskLevel(raw)
			if err != nil {
				return Policy{}, err
			}
			perRisk[risk] = Requirement{
				Required:       req.Required,
				AlwaysReverify: req.AlwaysReverify,
			}
		}
		base.PerRisk = perRisk
	}
	return base, nil
}
