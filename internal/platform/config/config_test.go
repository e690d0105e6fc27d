package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "keystone/pkg/domain"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := FromEnv()
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, "keystone.audit.events", cfg.Kafka.Topic)
		assert.Equal(t, 4*time.Hour, cfg.Elevation.AutoApproveMaxGrant)
		assert.True(t, cfg.Elevation.PolicyEnforcement)
		assert.Empty(t, cfg.Elevation.PolicyRoutes)
		assert.Empty(t, cfg.Elevation.MFAPolicies)
		assert.Equal(t, []string{"platform-admin"}, cfg.Revocation.AdminRoles)
	})

	t.Run("policy tables pass through from the environment", func(t *testing.T) {
		routes := `{"markets": {"angola": {"approval": "elevation/angola/approval"}}}`
		policies := `{"markets": {"brazil": {"challenge_type": "sms"}}}`
		t.Setenv("POLICY_ROUTES", routes)
		t.Setenv("MFA_POLICIES", policies)

		cfg := FromEnv()
		assert.Equal(t, routes, cfg.Elevation.PolicyRoutes)
		assert.Equal(t, policies, cfg.Elevation.MFAPolicies)
	})

	t.Run("universal markets are normalized and deduplicated", func(t *testing.T) {
		t.Setenv("UNIVERSAL_MARKETS", "Global, angola ,GLOBAL")
		cfg := FromEnv()
		assert.Equal(t, []id.Market{"global", "angola"}, cfg.Elevation.UniversalMarkets)
	})

	t.Run("durations and lists parse", func(t *testing.T) {
		t.Setenv("REAP_INTERVAL", "30s")
		t.Setenv("AUTO_APPROVE_FORBIDDEN_SCOPES", "billing:write, iam:admin")
		cfg := FromEnv()
		assert.Equal(t, 30*time.Second, cfg.Elevation.ReapInterval)
		assert.Equal(t, []string{"billing:write", "iam:admin"}, cfg.Elevation.ForbiddenScopes)
	})
}
