package handler

import (
	"context"
	"time"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"

	"keystone/internal/elevation/models"
)

// ElevationRequestBody is the wire form of an elevation ask. Identity and
// isolation context (requester, tenant, market, business unit, risk level)
// come from the authenticated request context, never from the body.
type ElevationRequestBody struct {
	Justification  string   `json:"justification"`
	Roles          []string `json:"roles,omitempty"`
	Scopes         []string `json:"scopes,omitempty"`
	Duration       string   `json:"duration"`
	Emergency      bool     `json:"emergency,omitempty"`
	TargetApprover string   `json:"target_approver,omitempty"`
	DataCategories []string `json:"data_categories,omitempty"`
	MFAToken       string   `json:"mfa_token,omitempty"`

	// Purpose and Retention are mandatory companions of sensitive data
	// categories; the privacy gate rejects sensitive requests without them.
	Purpose   string `json:"purpose,omitempty"`
	Retention string `json:"retention,omitempty"`
}

// ToDomain builds the domain request from the body and the ambient context.
// The returned context carries the body's privacy purpose and retention so
// downstream gates see them alongside the gateway-injected identity values.
func (b ElevationRequestBody) ToDomain(ctx context.Context) (context.Context, models.ElevationRequest, error) {
	duration, err := time.ParseDuration(b.Duration)
	if err != nil {
		return ctx, models.ElevationRequest{}, dErrors.New(dErrors.CodeInvalidInput, "invalid duration: "+b.Duration)
	}

	if b.Purpose != "" {
		ctx = requestcontext.WithPurpose(ctx, b.Purpose)
	}
	if b.Retention != "" {
		retention, err := time.ParseDuration(b.Retention)
		if err != nil {
			return ctx, models.ElevationRequest{}, dErrors.New(dErrors.CodeInvalidInput, "invalid retention: "+b.Retention)
		}
		ctx = requestcontext.WithRetention(ctx, retention)
	}

	request := models.ElevationRequest{
		RequesterID:   requestcontext.ActorID(ctx),
		TenantID:      requestcontext.TenantID(ctx),
		Market:        requestcontext.Market(ctx),
		BusinessUnit:  requestcontext.BusinessUnit(ctx),
		Justification: b.Justification,
		Roles:         b.Roles,
		Scopes:        b.Scopes,
		Duration:      duration,
		Emergency:     b.Emergency,
	}

	if b.TargetApprover != "" {
		approver, err := id.ParseUserID(b.TargetApprover)
		if err != nil {
			return ctx, models.ElevationRequest{}, err
		}
		request.TargetApprover = approver
	}

	for _, raw := range b.DataCategories {
		category, err := id.ParseDataCategory(raw)
		if err != nil {
			return ctx, models.ElevationRequest{}, err
		}
		request.DataCategories = append(request.DataCategories, category)
	}
	return ctx, request, nil
}

// VerifyRequestBody carries the opaque token to check.
type VerifyRequestBody struct {
	Token string `json:"token"`
}

// UsageRequestBody reports one elevated operation after the fact.
type UsageRequestBody struct {
	Operation string `json:"operation"`
	Resource  string `json:"resource,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Result    string `json:"result"`
}

// RevokeRequestBody carries the revocation reason.
type RevokeRequestBody struct {
	Reason string `json:"reason"`
}
