package mfa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"
)

type stubProvider struct {
	status        Status
	statusErr     error
	challengeID   string
	challengeType string
	verifyOK      bool
	verifyErr     error
}

func (s *stubProvider) GetStatus(context.Context, id.UserID) (Status, error) {
	return s.status, s.statusErr
}

func (s *stubProvider) StartChallenge(_ context.Context, _ id.UserID, challengeType string) (string, error) {
	s.challengeType = challengeType
	return s.challengeID, nil
}

func (s *stubProvider) VerifyToken(context.Context, id.UserID, string, string) (bool, error) {
	return s.verifyOK, s.verifyErr
}

func testPolicies() Policies {
	return Policies{
		ByMarket: map[id.Market]Policy{
			"angola": {
				PerRisk: map[id.RiskLevel]Requirement{
					id.RiskMedium:   {Required: true},
					id.RiskHigh:     {Required: true, AlwaysReverify: true},
					id.RiskCritical: {Required: true, AlwaysReverify: true},
				},
				ChallengeType:     "sms",
				FreshnessWindow:   5 * time.Minute,
				EnforceEnrollment: true,
			},
			"brazil": {
				// Medium risk deliberately not required in this market.
				PerRisk: map[id.RiskLevel]Requirement{
					id.RiskHigh:     {Required: true, AlwaysReverify: true},
					id.RiskCritical: {Required: true, AlwaysReverify: true},
				},
				ChallengeType:     "totp",
				FreshnessWindow:   5 * time.Minute,
				EnforceEnrollment: false,
			},
		},
		Default: DefaultPolicies().Default,
	}
}

func requestCtx(market id.Market, risk id.RiskLevel, now time.Time) context.Context {
	ctx := requestcontext.WithMarket(context.Background(), market)
	ctx = requestcontext.WithRiskLevel(ctx, risk)
	return requestcontext.WithTime(ctx, now)
}

func TestCheckMFARequirement(t *testing.T) {
	userID := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	enrolled := func(lastVerified time.Time) *stubProvider {
		return &stubProvider{status: Status{Enabled: true, PrimaryMethod: "totp", LastVerifiedAt: lastVerified}}
	}

	t.Run("low risk never requires step-up", func(t *testing.T) {
		gate := NewGate(enrolled(time.Time{}), testPolicies(), nil)
		required, reason, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskLow, now), userID)
		require.NoError(t, err)
		assert.False(t, required)
		assert.Contains(t, reason, "not required")
	})

	t.Run("market without medium requirement skips step-up regardless of staleness", func(t *testing.T) {
		// Verification ten years stale; the flag alone decides.
		gate := NewGate(enrolled(now.Add(-10*365*24*time.Hour)), testPolicies(), nil)
		required, _, err := gate.CheckMFARequirement(requestCtx("brazil", id.RiskMedium, now), userID)
		require.NoError(t, err)
		assert.False(t, required)
	})

	t.Run("medium risk within freshness window is accepted", func(t *testing.T) {
		gate := NewGate(enrolled(now.Add(-2*time.Minute)), testPolicies(), nil)
		required, _, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskMedium, now), userID)
		require.NoError(t, err)
		assert.False(t, required)
	})

	t.Run("medium risk outside freshness window requires step-up", func(t *testing.T) {
		gate := NewGate(enrolled(now.Add(-6*time.Minute)), testPolicies(), nil)
		required, reason, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskMedium, now), userID)
		require.NoError(t, err)
		assert.True(t, required)
		assert.Contains(t, reason, "freshness")
	})

	t.Run("medium risk with no prior verification requires step-up", func(t *testing.T) {
		gate := NewGate(enrolled(time.Time{}), testPolicies(), nil)
		required, _, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskMedium, now), userID)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("high risk re-verifies despite fresh verification", func(t *testing.T) {
		gate := NewGate(enrolled(now.Add(-time.Second)), testPolicies(), nil)
		required, reason, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskHigh, now), userID)
		require.NoError(t, err)
		assert.True(t, required)
		assert.Contains(t, reason, "re-verifies")
	})

	t.Run("unconfigured market falls back to default policy", func(t *testing.T) {
		gate := NewGate(enrolled(now.Add(-time.Second)), testPolicies(), nil)
		required, _, err := gate.CheckMFARequirement(requestCtx("portugal", id.RiskCritical, now), userID)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("mandatory enrollment denies unenrolled user", func(t *testing.T) {
		gate := NewGate(&stubProvider{status: Status{Enabled: false}}, testPolicies(), nil)
		_, _, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskHigh, now), userID)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})

	t.Run("lenient market lets unenrolled user through", func(t *testing.T) {
		gate := NewGate(&stubProvider{status: Status{Enabled: false}}, testPolicies(), nil)
		required, _, err := gate.CheckMFARequirement(requestCtx("brazil", id.RiskHigh, now), userID)
		require.NoError(t, err)
		assert.False(t, required)
	})

	t.Run("provider failure is surfaced", func(t *testing.T) {
		gate := NewGate(&stubProvider{statusErr: errors.New("provider unreachable")}, testPolicies(), nil)
		_, _, err := gate.CheckMFARequirement(requestCtx("angola", id.RiskMedium, now), userID)
		require.Error(t, err)
	})
}

func TestChallengeAndVerify(t *testing.T) {
	userID := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("challenge uses market challenge type", func(t *testing.T) {
		provider := &stubProvider{challengeID: "chal-1"}
		gate := NewGate(provider, testPolicies(), nil)

		challengeID, err := gate.Challenge(requestCtx("angola", id.RiskHigh, now), userID)
		require.NoError(t, err)
		assert.Equal(t, "chal-1", challengeID)
		assert.Equal(t, "sms", provider.challengeType)
	})

	t.Run("accepted token verifies", func(t *testing.T) {
		gate := NewGate(&stubProvider{verifyOK: true}, testPolicies(), nil)
		assert.NoError(t, gate.Verify(context.Background(), userID, "chal-1", "123456"))
	})

	t.Run("rejected token is a distinct failure", func(t *testing.T) {
		gate := NewGate(&stubProvider{verifyOK: false}, testPolicies(), nil)
		err := gate.Verify(context.Background(), userID, "chal-1", "000000")
		assert.ErrorIs(t, err, ErrVerificationFailed)
	})

	t.Run("provider error during verify is not a rejection", func(t *testing.T) {
		gate := NewGate(&stubProvider{verifyErr: errors.New("timeout")}, testPolicies(), nil)
		err := gate.Verify(context.Background(), userID, "chal-1", "123456")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrVerificationFailed)
	})
}
