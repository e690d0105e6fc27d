package policy

import (
	"time"
)

// Recognized condition keys. Everything else in a Decision's conditions map
// is carried verbatim into audit metadata without interpretation.
const (
	// ConditionMaxDuration caps the granted duration; value is a Go duration
	// string ("2h") or a float64 number of seconds (JSON decoding).
	ConditionMaxDuration = "max_duration"
	// ConditionAllowedScopes restricts the granted scope set; value is a
	// []any of strings.
	ConditionAllowedScopes = "allowed_scopes"
	// ConditionAllowedNamespaces restricts where a usage may run.
	ConditionAllowedNamespaces = "allowed_namespaces"
	// ConditionRequireMFA forces step-up regardless of the risk policy.
	ConditionRequireMFA = "require_mfa"
)

// MaxDuration extracts the duration cap from a conditions map.
// Returns (0, false) when no cap is present or the value is malformed;
// malformed caps are deliberately ignored rather than failing the grant,
// since the raw condition still lands in audit metadata for review.
func MaxDuration(conditions map[string]any) (time.Duration, bool) {
	raw, ok := conditions[ConditionMaxDuration]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, false
		}
		return d, true
	case float64:
		if v <= 0 {
			return 0, false
		}
		return time.Duration(v * float64(time.Second)), true
	case time.Duration:
		if v <= 0 {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

// RequireMFA reports whether the conditions force step-up authentication.
func RequireMFA(conditions map[string]any) bool {
	v, ok := conditions[ConditionRequireMFA].(bool)
	return ok && v
}

// StringSet extracts a recognized string-list condition ("allowed_scopes",
// "allowed_namespaces"). Returns (nil, false) when absent; an empty present
// list means "nothing allowed" and is returned as (empty, true).
func StringSet(conditions map[string]any, key string) ([]string, bool) {
	raw, ok := conditions[key]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// IntersectScopes returns requested ∩ allowed, preserving request order.
// A nil allowed set (no restriction) returns the request unchanged.
func IntersectScopes(requested, allowed []string) []string {
	if allowed == nil {
		return requested
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = true
	}
	var out []string
	for _, s := range requested {
		if allowedSet[s] {
			out = append(out, s)
		}
	}
	return out
}
