package service

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

	"keystone/internal/elevation/models"
)

func baseRequest(emergency bool) models.ElevationRequest {
	return models.ElevationRequest{
		RequesterID:   id.UserID(uuid.New()),
		TenantID:      id.TenantID(uuid.New()),
		Market:        "angola",
		Justification: "incident response",
		Roles:         []string{"db-admin"},
		Scopes:        []string{"db:read", "db:write"},
		Duration:      30 * time.Minute,
		Emergency:     emergency,
	}
}

func TestAutoApprover(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	system := id.UserID(uuid.New())

	approver := &AutoApprover{
		MaxDuration:     time.Hour,
		ForbiddenScopes: []string{"iam:root"},
		SystemActor:     system,
	}

	t.Run("grants within limits", func(t *testing.T) {
		request := baseRequest(true)
		approval, err := approver.Approve(ctx, request)
		require.NoError(t, err)
		assert.True(t, approval.Automatic)
		assert.Equal(t, system, approval.ApproverID)
		assert.Equal(t, now, approval.ApprovedAt)
		assert.Equal(t, now.Add(30*time.Minute), approval.ExpiresAt)
		assert.Equal(t, request.Scopes, approval.GrantedScopes)
	})

	t.Run("duration over cap", func(t *testing.T) {
		request := baseRequest(true)
		request.Duration = 2 * time.Hour
		_, err := approver.Approve(ctx, request)
		assert.ErrorIs(t, err, ErrDurationExceeded)
	})

	t.Run("forbidden scope", func(t *testing.T) {
		request := baseRequest(true)
		request.Scopes = append(request.Scopes, "iam:root")
		_, err := approver.Approve(ctx, request)
		assert.ErrorIs(t, err, ErrForbiddenScope)
	})
}

type stubWorkflow struct {
	decision WorkflowDecision
	err      error
}

func (w *stubWorkflow) RequestApproval(context.Context, models.ElevationRequest) (WorkflowDecision, error) {
	return w.decision, w.err
}

func TestManualApprover(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	human := id.UserID(uuid.New())

	t.Run("approval may narrow the grant", func(t *testing.T) {
		approver := &ManualApprover{Workflow: &stubWorkflow{decision: WorkflowDecision{
			Approved:        true,
			ApproverID:      human,
			GrantedDuration: 15 * time.Minute,
			GrantedScopes:   []string{"db:read"},
		}}}

		approval, err := approver.Approve(ctx, baseRequest(false))
		require.NoError(t, err)
		assert.False(t, approval.Automatic)
		assert.Equal(t, human, approval.ApproverID)
		assert.Equal(t, now.Add(15*time.Minute), approval.ExpiresAt)
		assert.Equal(t, []string{"db:read"}, approval.GrantedScopes)
		assert.Equal(t, []string{"db-admin"}, approval.GrantedRoles)
	})

	t.Run("workflow grant never widens the window", func(t *testing.T) {
		approver := &ManualApprover{Workflow: &stubWorkflow{decision: WorkflowDecision{
			Approved:        true,
			ApproverID:      human,
			GrantedDuration: 4 * time.Hour,
		}}}

		approval, err := approver.Approve(ctx, baseRequest(false))
		require.NoError(t, err)
		assert.Equal(t, now.Add(30*time.Minute), approval.ExpiresAt)
	})

	t.Run("rejection carries the reason", func(t *testing.T) {
		approver := &ManualApprover{Workflow: &stubWorkflow{decision: WorkflowDecision{
			Approved: false,
			Reason:   "change freeze in effect",
		}}}

		_, err := approver.Approve(ctx, baseRequest(false))
		var denied *PolicyDeniedError
		require.ErrorAs(t, err, &denied)
		assert.Contains(t, denied.Reasons, "change freeze in effect")
	})

	t.Run("workflow failure is surfaced", func(t *testing.T) {
		approver := &ManualApprover{Workflow: &stubWorkflow{err: errors.New("workflow timeout")}}
		_, err := approver.Approve(ctx, baseRequest(false))
		require.Error(t, err)
	})
}

func TestDispatchApprover(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	auto := &AutoApprover{SystemActor: id.UserID(uuid.New())}
	manual := &ManualApprover{Workflow: &stubWorkflow{decision: WorkflowDecision{
		Approved:   true,
		ApproverID: id.UserID(uuid.New()),
	}}}
	dispatch := &DispatchApprover{Auto: auto, Manual: manual}

	t.Run("emergency routes to automatic", func(t *testing.T) {
		approval, err := dispatch.Approve(ctx, baseRequest(true))
		require.NoError(t, err)
		assert.True(t, approval.Automatic)
	})

	t.Run("ordinary routes to workflow", func(t *testing.T) {
		approval, err := dispatch.Approve(ctx, baseRequest(false))
		require.NoError(t, err)
		assert.False(t, approval.Automatic)
	})
}
