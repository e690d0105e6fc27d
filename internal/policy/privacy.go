package policy

import (
	"time"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

// PrivacyRules layer additional requirements on top of the ordinary pipeline
// when a request's data categories intersect the configured sensitive set:
// MFA becomes mandatory, a purpose statement and retention period must
// accompany the request, and the approval's audit metadata records the
// applicable regulations for compliance reporting.
type PrivacyRules struct {
	// Sensitive is the set of data categories that trigger privacy handling.
	Sensitive map[id.DataCategory]bool
	// Regulations maps a data category to the frameworks it is evidence
	// under, per market; the empty market key holds the default mapping.
	Regulations map[id.Market]map[id.DataCategory][]string
}

// DefaultPrivacyRules covers the common case: PII and financial data are
// sensitive, under GDPR and SOX respectively, everywhere.
func DefaultPrivacyRules() PrivacyRules {
	return PrivacyRules{
		Sensitive: map[id.DataCategory]bool{
			id.DataCategoryPII:       true,
			id.DataCategoryFinancial: true,
			id.DataCategoryHealth:    true,
		},
		Regulations: map[id.Market]map[id.DataCategory][]string{
			"": {
				id.DataCategoryPII:       {"gdpr"},
				id.DataCategoryFinancial: {"sox", "pci-dss"},
				id.DataCategoryHealth:    {"hipaa"},
			},
		},
	}
}

// PrivacyAssessment is the result of screening a request's data categories.
type PrivacyAssessment struct {
	// Applies is true when at least one category is sensitive.
	Applies bool
	// MFAMandatory forces step-up regardless of the ordinary risk policy.
	MFAMandatory bool
	// Regulations are the frameworks the approval is evidence under.
	Regulations []string
	// Purpose and Retention echo the validated caller declarations.
	Purpose   string
	Retention time.Duration
}

// Assess screens the categories and validates the privacy declarations.
// Purpose and retention are the caller's ambient privacy context; both are
// mandatory once any sensitive category applies.
func (r PrivacyRules) Assess(categories []id.DataCategory, market id.Market, purpose string, retention time.Duration) (PrivacyAssessment, error) {
	var assessment PrivacyAssessment
	seen := make(map[string]bool)

	for _, c := range categories {
		if !r.Sensitive[c] {
			continue
		}
		assessment.Applies = true
		for _, reg := range r.regulationsFor(market, c) {
			if !seen[reg] {
				seen[reg] = true
				assessment.Regulations = append(assessment.Regulations, reg)
			}
		}
	}

	if !assessment.Applies {
		return assessment, nil
	}

	if purpose == "" {
		return assessment, dErrors.New(dErrors.CodeInvalidInput,
			"purpose statement is required for sensitive data categories")
	}
	if retention <= 0 {
		return assessment, dErrors.New(dErrors.CodeInvalidInput,
			"retention period is required for sensitive data categories")
	}

	assessment.MFAMandatory = true
	assessment.Purpose = purpose
	assessment.Retention = retention
	return assessment, nil
}

func (r PrivacyRules) regulationsFor(market id.Market, c id.DataCategory) []string {
	if byCategory, ok := r.Regulations[market]; ok {
		if regs, ok := byCategory[c]; ok {
			return regs
		}
	}
	if byCategory, ok := r.Regulations[""]; ok {
		return byCategory[c]
	}
	return nil
}

// Annotate copies the privacy outcome into approval audit metadata under
// stable keys consumed by compliance reporting.
func (a PrivacyAssessment) Annotate(metadata map[string]any) {
	if !a.Applies {
		return
	}
	metadata["privacy.regulations"] = a.Regulations
	metadata["privacy.purpose"] = a.Purpose
	metadata["privacy.retention"] = a.Retention.String()
}
