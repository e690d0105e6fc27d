package mfa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
)

func TestParsePolicies(t *testing.T) {
	t.Run("empty input yields the defaults", func(t *testing.T) {
		policies, err := ParsePolicies("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPolicies(), policies)
	})

	t.Run("market overlay inherits unset fields from the default", func(t *testing.T) {
		policies, err := ParsePolicies(`{
			"markets": {
				"brazil": {
					"challenge_type": "sms",
					"enforce_enrollment": false
				}
			}
		}`)
		require.NoError(t, err)

		brazil := policies.Resolve("brazil")
		assert.Equal(t, "sms", brazil.ChallengeType)
		assert.False(t, brazil.EnforceEnrollment)
		// Inherited from the baseline.
		assert.Equal(t, 5*time.Minute, brazil.FreshnessWindow)
		assert.Equal(t, Requirement{Required: true, AlwaysReverify: true}, brazil.PerRisk[id.RiskHigh])

		// Markets without an overlay still resolve to the defaults.
		assert.Equal(t, DefaultPolicies().Default, policies.Resolve("angola"))
	})

	t.Run("per-risk table replaces the baseline whole", func(t *testing.T) {
		policies, err := ParsePolicies(`{
			"default": {
				"freshness_window": "10m",
				"per_risk": {
					"low":  {"required": true},
					"high": {"required": true, "always_reverify": true}
				}
			}
		}`)
		require.NoError(t, err)

		def := policies.Default
		assert.Equal(t, 10*time.Minute, def.FreshnessWindow)
		assert.Equal(t, Requirement{Required: true}, def.PerRisk[id.RiskLow])
		assert.Equal(t, Requirement{}, def.PerRisk[id.RiskMedium])
	})

	t.Run("rejects unknown risk levels and bad durations", func(t *testing.T) {
		_, err := ParsePolicies(`{"default": {"per_risk": {"severe": {"required": true}}}}`)
		assert.Error(t, err)

		_, err = ParsePolicies(`{"default": {"freshness_window": "weekly"}}`)
		assert.Error(t, err)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		_, err := ParsePolicies(`{"markets": `)
		assert.Error(t, err)
	})
}
