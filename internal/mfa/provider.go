// Package mfa implements the step-up authentication gate for elevation
// requests. The gate resolves a per-market policy declaring, per risk level,
// whether a fresh multi-factor verification is mandatory, and drives the
// challenge/verify round-trip against an external provider.
package mfa

import (
	"context"
	"errors"
	"time"

	id "keystone/pkg/domain"
)

//go:generate mockgen -source=provider.go -destination=../../mocks/mfa_provider_mock.go -package=mocks

// Provider is the external multi-factor authentication system. Transport of
// challenges (SMS, TOTP, push) is the provider's concern.
type Provider interface {
	// GetStatus reports a user's enrollment and verification freshness.
	GetStatus(ctx context.Context, userID id.UserID) (Status, error)
	// StartChallenge issues a challenge of the given type and returns its ID.
	StartChallenge(ctx context.Context, userID id.UserID, challengeType string) (string, error)
	// VerifyToken checks a submitted token against an outstanding challenge.
	VerifyToken(ctx context.Context, userID id.UserID, challengeID, token string) (bool, error)
}

// Status is a user's step-up enrollment snapshot.
type Status struct {
	Enabled        bool
	PrimaryMethod  string
	BackupMethods  []string
	LastVerifiedAt time.Time
}

// Gate-level sentinel errors. Callers map these onto their own error
// taxonomy at the service boundary.
var (
	// ErrNotEnrolled means step-up is mandatory for this market but the user
	// has no enrolled factor; the request is denied without a challenge.
	ErrNotEnrolled = errors.New("mfa not configured for user")
	// ErrVerificationFailed means a submitted token was rejected.
	ErrVerificationFailed = errors.New("mfa verification failed")
)
