package mfa_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"keystone/internal/mfa"
	"keystone/mocks"
	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"
)

// Exercises the full check, challenge, and verify sequence against the
// provider contract, including call order and arguments.
func TestStepUpFlow(t *testing.T) {
	userID := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	flowCtx := func(risk id.RiskLevel) context.Context {
		ctx := requestcontext.WithMarket(context.Background(), "angola")
		ctx = requestcontext.WithRiskLevel(ctx, risk)
		return requestcontext.WithTime(ctx, now)
	}

	t.Run("high risk runs the whole exchange", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		gate := mfa.NewGate(provider, mfa.DefaultPolicies(), nil)
		ctx := flowCtx(id.RiskHigh)

		status := provider.EXPECT().
			GetStatus(gomock.Any(), userID).
			Return(mfa.Status{Enabled: true, PrimaryMethod: "totp"}, nil)
		challenge := provider.EXPECT().
			StartChallenge(gomock.Any(), userID, "totp").
			Return("chal-1", nil).
			After(status)
		provider.EXPECT().
			VerifyToken(gomock.Any(), userID, "chal-1", "123456").
			Return(true, nil).
			After(challenge)

		required, _, err := gate.CheckMFARequirement(ctx, userID)
		require.NoError(t, err)
		require.True(t, required)

		challengeID, err := gate.Challenge(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "chal-1", challengeID)

		require.NoError(t, gate.Verify(ctx, userID, challengeID, "123456"))
	})

	t.Run("rejected token surfaces ErrVerificationFailed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		gate := mfa.NewGate(provider, mfa.DefaultPolicies(), nil)

		provider.EXPECT().
			VerifyToken(gomock.Any(), userID, "chal-2", "000000").
			Return(false, nil)

		err := gate.Verify(flowCtx(id.RiskHigh), userID, "chal-2", "000000")
		assert.ErrorIs(t, err, mfa.ErrVerificationFailed)
	})

	t.Run("provider outage does not issue a challenge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		gate := mfa.NewGate(provider, mfa.DefaultPolicies(), nil)

		provider.EXPECT().
			GetStatus(gomock.Any(), userID).
			Return(mfa.Status{}, errors.New("provider unreachable"))

		_, _, err := gate.CheckMFARequirement(flowCtx(id.RiskHigh), userID)
		require.Error(t, err)
	})
}
