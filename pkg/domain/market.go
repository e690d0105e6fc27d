package domain

import (
	"strings"

	dErrors "keystone/pkg/domain-errors"
)

// Market is a jurisdiction/regulatory-region tag. Markets drive policy
// routing and MFA variation; the set of valid markets is configuration, not
// code, so parsing only normalizes and rejects the obviously malformed.
//
// MarketGlobal is the conventional fallback key in per-market tables and is
// also the default universal market (exempt from market isolation checks).
type Market string

const MarketGlobal Market = "global"

// ParseMarket normalizes external input into a Market.
// Errors: CodeInvalidInput when the value is empty or contains spaces.
func ParseMarket(s string) (Market, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "market cannot be empty")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "market cannot contain whitespace")
	}
	return Market(s), nil
}

func (m Market) String() string { return string(m) }

func (m Market) IsGlobal() bool { return m == MarketGlobal }
