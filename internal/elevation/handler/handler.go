package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/audit"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/requestcontext"

	"keystone/internal/elevation/metrics"
	"keystone/internal/elevation/models"
	"keystone/internal/elevation/service"
)

// Service defines the interface for elevation operations.
type Service interface {
	RequestElevation(ctx context.Context, request models.ElevationRequest) (models.ElevationApproval, error)
	RequestElevationWithMFA(ctx context.Context, request models.ElevationRequest, mfaToken string) (models.ElevationApproval, error)
	VerifyElevation(ctx context.Context, token string) (bool, string, *models.ElevationRecord, error)
	RecordUsage(ctx context.Context, elevationID id.ElevationID, usage service.UsageReport) error
	RevokeElevation(ctx context.Context, elevationID id.ElevationID, actorID id.UserID, reason string) error
	QueryElevationAudit(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// Handler wires elevation endpoints to the elevation service.
type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs an elevation handler with its dependencies.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// Register mounts elevation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/elevations", h.HandleRequest)
	r.Post("/elevations/verify", h.HandleVerify)
	r.Post("/elevations/{elevationID}/usage", h.HandleUsage)
	r.Post("/elevations/{elevationID}/revoke", h.HandleRevoke)
	r.Get("/elevations/audit", h.HandleAuditQuery)
}

// HandleRequest handles POST /elevations. A body carrying mfa_token routes
// through the step-up path; otherwise a plain request is submitted and a
// step-up demand surfaces as 401 mfa_required.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actorID := requestcontext.ActorID(ctx)
	if actorID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	body, ok := httputil.Decode[ElevationRequestBody](w, r)
	if !ok {
		return
	}

	ctx, request, err := body.ToDomain(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var approval models.ElevationApproval
	if body.MFAToken != "" {
		approval, err = h.service.RequestElevationWithMFA(ctx, request, body.MFAToken)
	} else {
		approval, err = h.service.RequestElevation(ctx, request)
	}
	if err != nil {
		h.writeServiceError(ctx, w, "elevation request failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "elevation granted",
		"request_id", requestID,
		"elevation_id", approval.ElevationID,
		"requester_id", actorID,
		"automatic", approval.Automatic,
		"expires_at", approval.ExpiresAt,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusCreated, toApprovalResponse(approval))
}

// HandleVerify handles POST /elevations/verify. Invalid tokens are a 200
// with valid=false; verification is a question, not a failure.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, ok := httputil.Decode[VerifyRequestBody](w, r)
	if !ok {
		return
	}
	if body.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "token is required"))
		return
	}

	valid, reason, record, err := h.service.VerifyElevation(ctx, body.Token)
	if err != nil && dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "elevation verification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(valid, reason, record))
}

// HandleUsage handles POST /elevations/{elevationID}/usage.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	elevationID, err := id.ParseElevationID(chi.URLParam(r, "elevationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	body, ok := httputil.Decode[UsageRequestBody](w, r)
	if !ok {
		return
	}
	if body.Operation == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "operation is required"))
		return
	}

	err = h.service.RecordUsage(ctx, elevationID, service.UsageReport{
		Operation: body.Operation,
		Resource:  body.Resource,
		Namespace: body.Namespace,
		Result:    body.Result,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "usage report failed", requestID, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleRevoke handles POST /elevations/{elevationID}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actorID := requestcontext.ActorID(ctx)
	if actorID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	elevationID, err := id.ParseElevationID(chi.URLParam(r, "elevationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	body, ok := httputil.Decode[RevokeRequestBody](w, r)
	if !ok {
		return
	}
	if body.Reason == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "reason is required"))
		return
	}

	if err := h.service.RevokeElevation(ctx, elevationID, actorID, body.Reason); err != nil {
		h.writeServiceError(ctx, w, "revocation failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "elevation revoked",
		"request_id", requestID,
		"elevation_id", elevationID,
		"actor_id", actorID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAuditQuery handles GET /elevations/audit.
func (h *Handler) HandleAuditQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	filter, err := parseAuditFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.QueryElevationAudit(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": toAuditResponses(events),
		"count":  len(events),
	})
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		ResourceID: q.Get("elevation_id"),
		ActorID:    q.Get("actor_id"),
		Subtype:    audit.Subtype(q.Get("subtype")),
		Market:     id.Market(q.Get("market")),
	}

	if raw := q.Get("tenant_id"); raw != "" {
		tenantID, err := id.ParseTenantID(raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.TenantID = tenantID
	}
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid start time")
		}
		filter.StartTime = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid end time")
		}
		filter.EndTime = t
	}
	return filter, nil
}

// writeServiceError translates service failures to wire responses. Policy
// denials carry their checkpoint and reasons so callers can remediate.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg, requestID string, err error) {
	var denied *service.PolicyDeniedError
	if errors.As(err, &denied) {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"checkpoint", denied.Checkpoint,
			"reasons", denied.Reasons,
		)
		httputil.WriteJSON(w, http.StatusForbidden, map[string]any{
			"error":      "policy_denied",
			"checkpoint": string(denied.Checkpoint),
			"reasons":    denied.Reasons,
		})
		return
	}

	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
