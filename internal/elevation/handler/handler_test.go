package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
	"keystone/pkg/platform/audit"
	"keystone/pkg/requestcontext"
	"keystone/pkg/testutil"

	"keystone/internal/elevation/models"
	"keystone/internal/elevation/service"
	"keystone/internal/policy"
)

type stubService struct {
	approval models.ElevationApproval
	err      error

	valid  bool
	reason string
	record *models.ElevationRecord

	events []audit.Event

	lastRequest   models.ElevationRequest
	lastMFAToken  string
	lastUsage     service.UsageReport
	lastRevokeID  id.ElevationID
	lastActorID   id.UserID
	lastReason    string
	lastFilter    audit.Filter
	lastPurpose   string
	lastRetention time.Duration
}

func (s *stubService) RequestElevation(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error) {
	s.lastRequest = request
	s.lastPurpose = requestcontext.Purpose(ctx)
	s.lastRetention = requestcontext.Retention(ctx)
	return s.approval, s.err
}

func (s *stubService) RequestElevationWithMFA(ctx context.Context, request models.ElevationRequest, mfaToken string) (models.ElevationApproval, error) {
	s.lastRequest = request
	s.lastMFAToken = mfaToken
	s.lastPurpose = requestcontext.Purpose(ctx)
	s.lastRetention = requestcontext.Retention(ctx)
	return s.approval, s.err
}

func (s *stubService) VerifyElevation(context.Context, string) (bool, string, *models.ElevationRecord, error) {
	return s.valid, s.reason, s.record, s.err
}

func (s *stubService) RecordUsage(_ context.Context, elevationID id.ElevationID, usage service.UsageReport) error {
	s.lastUsage = usage
	return s.err
}

func (s *stubService) RevokeElevation(_ context.Context, elevationID id.ElevationID, actorID id.UserID, reason string) error {
	s.lastRevokeID = elevationID
	s.lastActorID = actorID
	s.lastReason = reason
	return s.err
}

func (s *stubService) QueryElevationAudit(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	s.lastFilter = filter
	return s.events, s.err
}

func newTestRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil).Register(r)
	return r
}

func grantedApproval() models.ElevationApproval {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.ElevationApproval{
		ElevationID:   id.NewElevationID(),
		RequesterID:   id.UserID(uuid.New()),
		ApproverID:    id.UserID(uuid.New()),
		Automatic:     true,
		ApprovedAt:    now,
		ExpiresAt:     now.Add(time.Hour),
		GrantedRoles:  []string{"db-admin"},
		GrantedScopes: []string{"db:read"},
		EvidenceRef:   "evidence-jwt",
		Token:         "opaque-token",
	}
}

func authedRequest(t *testing.T, method, path string, body any) *http.Request {
	req := testutil.NewJSONRequest(t, method, path, body)
	req = testutil.WithActor(req, uuid.NewString())
	req = testutil.WithIsolation(req, uuid.NewString(), "angola")
	return req
}

func TestHandleRequest(t *testing.T) {
	body := ElevationRequestBody{
		Justification: "incident response",
		Roles:         []string{"db-admin"},
		Duration:      "30m",
		Emergency:     true,
	}

	t.Run("grants elevation", func(t *testing.T) {
		svc := &stubService{approval: grantedApproval()}
		router := newTestRouter(svc)

		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", body))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[ApprovalResponse](t, rr)
		assert.Equal(t, "opaque-token", resp.Token)
		assert.True(t, resp.Automatic)
		assert.Equal(t, []string{"db:read"}, resp.GrantedScopes)

		assert.Equal(t, "incident response", svc.lastRequest.Justification)
		assert.Equal(t, 30*time.Minute, svc.lastRequest.Duration)
		assert.Equal(t, id.Market("angola"), svc.lastRequest.Market)
		assert.False(t, svc.lastRequest.RequesterID.IsNil())
	})

	t.Run("routes mfa token to step-up path", func(t *testing.T) {
		svc := &stubService{approval: grantedApproval()}
		router := newTestRouter(svc)

		withToken := body
		withToken.MFAToken = "123456"
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", withToken))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		assert.Equal(t, "123456", svc.lastMFAToken)
	})

	t.Run("requires authentication", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/elevations", body))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/elevations", "{not json")
		req = testutil.WithActor(req, uuid.NewString())
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("rejects unparseable duration", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		bad := body
		bad.Duration = "soon"
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", bad))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("sensitive request carries purpose and retention to the service", func(t *testing.T) {
		svc := &stubService{approval: grantedApproval()}
		router := newTestRouter(svc)

		sensitive := body
		sensitive.DataCategories = []string{"pii"}
		sensitive.MFAToken = "123456"
		sensitive.Purpose = "fraud investigation"
		sensitive.Retention = "2160h"
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", sensitive))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		assert.Equal(t, "fraud investigation", svc.lastPurpose)
		assert.Equal(t, 2160*time.Hour, svc.lastRetention)
		require.Len(t, svc.lastRequest.DataCategories, 1)
		assert.Equal(t, id.DataCategoryPII, svc.lastRequest.DataCategories[0])
	})

	t.Run("rejects unparseable retention", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		bad := body
		bad.Retention = "quarterly"
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", bad))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("policy denial surfaces checkpoint and reasons", func(t *testing.T) {
		svc := &stubService{err: &service.PolicyDeniedError{
			Checkpoint: policy.CheckpointRequest,
			Reasons:    []string{"requester not in on-call rotation"},
		}}
		router := newTestRouter(svc)

		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", body))

		testutil.AssertStatus(t, rr, http.StatusForbidden)
		testutil.AssertJSONContains(t, rr, "error", "policy_denied")
		testutil.AssertJSONContains(t, rr, "checkpoint", "request")
	})

	t.Run("step-up demand maps to unauthorized", func(t *testing.T) {
		svc := &stubService{err: service.ErrMFARequired}
		router := newTestRouter(svc)
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations", body))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestHandleVerify(t *testing.T) {
	t.Run("valid token returns grant details", func(t *testing.T) {
		record := &models.ElevationRecord{
			ElevationID:   id.NewElevationID(),
			GrantedScopes: []string{"db:read"},
			ExpiresAt:     time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		}
		router := newTestRouter(&stubService{valid: true, record: record})

		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations/verify", VerifyRequestBody{Token: "tok"}))

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[VerifyResponse](t, rr)
		assert.True(t, resp.Valid)
		assert.Equal(t, record.ElevationID.String(), resp.ElevationID)
		require.NotNil(t, resp.ExpiresAt)
	})

	t.Run("invalid token is a 200 with the reason", func(t *testing.T) {
		router := newTestRouter(&stubService{
			valid:  false,
			reason: service.ReasonExpired,
			record: &models.ElevationRecord{ElevationID: id.NewElevationID()},
			err:    service.ErrTokenExpired,
		})

		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations/verify", VerifyRequestBody{Token: "tok"}))

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[VerifyResponse](t, rr)
		assert.False(t, resp.Valid)
		assert.Equal(t, service.ReasonExpired, resp.Reason)
		assert.Empty(t, resp.ElevationID)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations/verify", VerifyRequestBody{}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestHandleUsage(t *testing.T) {
	elevationID := id.NewElevationID()
	path := "/elevations/" + elevationID.String() + "/usage"
	body := UsageRequestBody{Operation: "db.query", Resource: "orders", Result: "success"}

	t.Run("accepts usage report", func(t *testing.T) {
		svc := &stubService{}
		router := newTestRouter(svc)
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, body))
		testutil.AssertStatus(t, rr, http.StatusAccepted)
		assert.Equal(t, "db.query", svc.lastUsage.Operation)
	})

	t.Run("rejects malformed elevation id", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, "/elevations/not-a-uuid/usage", body))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("requires an operation", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, UsageRequestBody{Result: "success"}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("unknown elevation maps to not found", func(t *testing.T) {
		router := newTestRouter(&stubService{err: service.ErrElevationNotFound})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, body))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestHandleRevoke(t *testing.T) {
	elevationID := id.NewElevationID()
	path := "/elevations/" + elevationID.String() + "/revoke"
	body := RevokeRequestBody{Reason: "credential leak"}

	t.Run("revokes and returns no content", func(t *testing.T) {
		svc := &stubService{}
		router := newTestRouter(svc)
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, body))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, elevationID, svc.lastRevokeID)
		assert.Equal(t, "credential leak", svc.lastReason)
		assert.False(t, svc.lastActorID.IsNil())
	})

	t.Run("requires authentication", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, path, body))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("requires a reason", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, RevokeRequestBody{}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("unauthorized revoker maps to forbidden", func(t *testing.T) {
		router := newTestRouter(&stubService{err: service.ErrRevocationNotAuthorized})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, body))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("double revoke maps to conflict", func(t *testing.T) {
		router := newTestRouter(&stubService{err: service.ErrAlreadyRevoked})
		rr := testutil.DoRequest(router, authedRequest(t, http.MethodPost, path, body))
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})
}

func TestHandleAuditQuery(t *testing.T) {
	t.Run("returns events with filters applied", func(t *testing.T) {
		tenantID := uuid.NewString()
		svc := &stubService{events: []audit.Event{
			{ID: uuid.New(), Subtype: audit.SubtypeElevationApproved, Result: "approved"},
		}}
		router := newTestRouter(svc)

		req := testutil.NewRequest(t, http.MethodGet,
			"/elevations/audit?subtype=elevation_approved&market=angola&tenant_id="+tenantID+"&start=2026-03-01T00:00:00Z")
		req = testutil.WithActor(req, uuid.NewString())
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "count", float64(1))
		assert.Equal(t, audit.SubtypeElevationApproved, svc.lastFilter.Subtype)
		assert.Equal(t, id.Market("angola"), svc.lastFilter.Market)
		assert.Equal(t, tenantID, svc.lastFilter.TenantID.String())
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), svc.lastFilter.StartTime)
	})

	t.Run("rejects malformed time bounds", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		req := testutil.NewRequest(t, http.MethodGet, "/elevations/audit?start=yesterday")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
