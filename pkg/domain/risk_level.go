package domain

import (
	dErrors "keystone/pkg/domain-errors"
)

// RiskLevel classifies the operational risk of an elevation. The step-up
// gate keys MFA requirements off this value.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var validRiskLevels = map[RiskLevel]bool{
	RiskLow:      true,
	RiskMedium:   true,
	RiskHigh:     true,
	RiskCritical: true,
}

// ParseRiskLevel constructs a RiskLevel from external input.
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParseRiskLevel(s string) (RiskLevel, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "risk level cannot be empty")
	}
	r := RiskLevel(s)
	if !validRiskLevels[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid risk level: "+s)
	}
	return r, nil
}

// IsValid checks if the risk level is one of the supported enum values.
func (r RiskLevel) IsValid() bool { return validRiskLevels[r] }

func (r RiskLevel) String() string { return string(r) }

// AtLeast reports whether r is at or above the given level, ordering
// low < medium < high < critical.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskOrder[r] >= riskOrder[other]
}

var riskOrder = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}
