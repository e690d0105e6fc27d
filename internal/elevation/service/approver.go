package service

import (
	"context"
	"fmt"
	"time"

	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"

	"keystone/internal/elevation/models"
)

// Approver produces the sign-off for an elevation request. Implementations
// form a closed set: automatic approval for emergency access and a human
// workflow for everything else, dispatched by the emergency flag.
//
// Failures use the named kinds: ErrDurationExceeded when the ask is longer
// than the approver permits, ErrForbiddenScope when a scope can never be
// granted.
type Approver interface {
	Approve(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error)
}

// AutoApprover grants emergency requests without human involvement, within
// hard limits. The grant mirrors the request; policy conditions have already
// narrowed it before the approver runs.
type AutoApprover struct {
	// MaxDuration caps the window an automatic approval may grant.
	MaxDuration time.Duration
	// ForbiddenScopes can never be granted automatically.
	ForbiddenScopes []string
	// SystemActor identifies the platform as the approving actor.
	SystemActor id.UserID
}

var _ Approver = (*AutoApprover)(nil)

func (a *AutoApprover) Approve(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error) {
	if a.MaxDuration > 0 && request.Duration > a.MaxDuration {
		return models.ElevationApproval{}, fmt.Errorf("automatic approval caps at %s: %w", a.MaxDuration, ErrDurationExceeded)
	}
	forbidden := make(map[string]bool, len(a.ForbiddenScopes))
	for _, s := range a.ForbiddenScopes {
		forbidden[s] = true
	}
	for _, s := range request.Scopes {
		if forbidden[s] {
			return models.ElevationApproval{}, fmt.Errorf("scope %q cannot be granted automatically: %w", s, ErrForbiddenScope)
		}
	}

	now := requestcontext.Now(ctx)
	return models.ElevationApproval{
		RequesterID:   request.RequesterID,
		ApproverID:    a.SystemActor,
		Automatic:     true,
		ApprovedAt:    now,
		ExpiresAt:     now.Add(request.Duration),
		GrantedRoles:  request.Roles,
		GrantedScopes: request.Scopes,
	}, nil
}

// ApprovalWorkflow is the human sign-off system behind manual approvals.
// It blocks until a decision is reached or ctx is cancelled.
type ApprovalWorkflow interface {
	RequestApproval(ctx context.Context, request models.ElevationRequest) (WorkflowDecision, error)
}

// WorkflowDecision is the human approver's verdict. GrantedDuration and the
// granted sets may be narrower than the request; they are never widened by
// the caller.
type WorkflowDecision struct {
	Approved        bool
	ApproverID      id.UserID
	Reason          string
	GrantedDuration time.Duration
	GrantedRoles    []string
	GrantedScopes   []string
}

// ManualApprover routes a request through the human approval workflow.
type ManualApprover struct {
	Workflow ApprovalWorkflow
}

var _ Approver = (*ManualApprover)(nil)

func (a *ManualApprover) Approve(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error) {
	decision, err := a.Workflow.RequestApproval(ctx, request)
	if err != nil {
		return models.ElevationApproval{}, fmt.Errorf("approval workflow: %w", err)
	}
	if !decision.Approved {
		return models.ElevationApproval{}, &PolicyDeniedError{Checkpoint: "approval", Reasons: []string{decision.Reason}}
	}

	duration := request.Duration
	if decision.GrantedDuration > 0 && decision.GrantedDuration < duration {
		duration = decision.GrantedDuration
	}
	roles := decision.GrantedRoles
	if roles == nil {
		roles = request.Roles
	}
	scopes := decision.GrantedScopes
	if scopes == nil {
		scopes = request.Scopes
	}

	now := requestcontext.Now(ctx)
	return models.ElevationApproval{
		RequesterID:   request.RequesterID,
		ApproverID:    decision.ApproverID,
		Automatic:     false,
		ApprovedAt:    now,
		ExpiresAt:     now.Add(duration),
		GrantedRoles:  roles,
		GrantedScopes: scopes,
	}, nil
}

// DispatchApprover selects automatic approval for emergency requests and the
// human workflow otherwise.
type DispatchApprover struct {
	Auto   Approver
	Manual Approver
}

var _ Approver = (*DispatchApprover)(nil)

func (d *DispatchApprover) Approve(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error) {
	if request.Emergency {
		return d.Auto.Approve(ctx, request)
	}
	return d.Manual.Approve(ctx, request)
}
