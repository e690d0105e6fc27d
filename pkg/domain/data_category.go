package domain

import (
	"strings"

	dErrors "keystone/pkg/domain-errors"
)

// DataCategory tags the kind of data an elevation touches. Categories in the
// configured sensitive set (typically PII and financial) trigger privacy
// handling: mandatory MFA, recorded purpose, and a retention period.
type DataCategory string

const (
	DataCategoryPII        DataCategory = "pii"
	DataCategoryFinancial  DataCategory = "financial"
	DataCategoryHealth     DataCategory = "health"
	DataCategoryOperations DataCategory = "operations"
)

// ParseDataCategory normalizes external input into a DataCategory. The valid
// set is open-ended (new categories arrive via configuration), so only the
// obviously malformed is rejected.
func ParseDataCategory(s string) (DataCategory, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "data category cannot be empty")
	}
	return DataCategory(s), nil
}

func (c DataCategory) String() string { return string(c) }
