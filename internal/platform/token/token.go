// Package token issues and validates platform identity tokens. Elevation
// bearer tokens are separate opaque credentials; this package only covers
// the identity the caller authenticates with.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"

	"keystone/internal/platform/middleware"
)

// Claims is the JWT claim set for identity tokens.
type Claims struct {
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id"`
	Market       string   `json:"market"`
	BusinessUnit string   `json:"business_unit,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	RiskLevel    string   `json:"risk_level,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates identity tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Generate signs an identity token for the given principal.
func (s *Service) Generate(identity middleware.IdentityClaims, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:       identity.UserID.String(),
		TenantID:     identity.TenantID.String(),
		Market:       string(identity.Market),
		BusinessUnit: identity.BusinessUnit,
		Roles:        identity.Roles,
		RiskLevel:    string(identity.RiskLevel),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

// ValidateToken parses a bearer token into identity claims.
func (s *Service) ValidateToken(tokenString string) (*middleware.IdentityClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	tenantID, err := id.ParseTenantID(claims.TenantID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token tenant")
	}

	identity := &middleware.IdentityClaims{
		UserID:       userID,
		TenantID:     tenantID,
		Market:       id.Market(claims.Market),
		BusinessUnit: claims.BusinessUnit,
		Roles:        claims.Roles,
	}
	if claims.RiskLevel != "" {
		risk, err := id.ParseRiskLevel(claims.RiskLevel)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token risk level")
		}
		identity.RiskLevel = risk
	}
	return identity, nil
}
