// Package workflow integrates external approval systems for non-emergency
// elevations.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "keystone/pkg/domain"

	"keystone/internal/elevation/models"
	"keystone/internal/elevation/service"
)

// HTTPWorkflow submits approval requests to an external workflow service
// (ticketing, chat-ops) and blocks until a decision comes back. The
// workflow service owns escalation and timeout semantics.
type HTTPWorkflow struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWorkflow creates a workflow client. The timeout bounds how long a
// single elevation request can wait for a human decision.
func NewHTTPWorkflow(baseURL string, timeout time.Duration) *HTTPWorkflow {
	return &HTTPWorkflow{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type approvalRequest struct {
	RequesterID    string   `json:"requester_id"`
	TenantID       string   `json:"tenant_id"`
	Market         string   `json:"market"`
	BusinessUnit   string   `json:"business_unit,omitempty"`
	Justification  string   `json:"justification"`
	Roles          []string `json:"roles,omitempty"`
	Scopes         []string `json:"scopes,omitempty"`
	DurationSecs   int64    `json:"duration_seconds"`
	TargetApprover string   `json:"target_approver,omitempty"`
}

type approvalDecision struct {
	Approved     bool     `json:"approved"`
	ApproverID   string   `json:"approver_id"`
	Reason       string   `json:"reason,omitempty"`
	GrantedSecs  int64    `json:"granted_seconds,omitempty"`
	GrantedRoles []string `json:"granted_roles,omitempty"`
	GrantedScope []string `json:"granted_scopes,omitempty"`
}

// RequestApproval submits the elevation for sign-off.
func (w *HTTPWorkflow) RequestApproval(ctx context.Context, request models.ElevationRequest) (service.WorkflowDecision, error) {
	payload := approvalRequest{
		RequesterID:   request.RequesterID.String(),
		TenantID:      request.TenantID.String(),
		Market:        string(request.Market),
		BusinessUnit:  request.BusinessUnit,
		Justification: request.Justification,
		Roles:         request.Roles,
		Scopes:        request.Scopes,
		DurationSecs:  int64(request.Duration / time.Second),
	}
	if !request.TargetApprover.IsNil() {
		payload.TargetApprover = request.TargetApprover.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return service.WorkflowDecision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/approvals", bytes.NewReader(body))
	if err != nil {
		return service.WorkflowDecision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return service.WorkflowDecision{}, fmt.Errorf("approval workflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return service.WorkflowDecision{}, fmt.Errorf("approval workflow returned %d", resp.StatusCode)
	}

	var decoded approvalDecision
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return service.WorkflowDecision{}, fmt.Errorf("decode approval decision: %w", err)
	}

	decision := service.WorkflowDecision{
		Approved:        decoded.Approved,
		Reason:          decoded.Reason,
		GrantedDuration: time.Duration(decoded.GrantedSecs) * time.Second,
		GrantedRoles:    decoded.GrantedRoles,
		GrantedScopes:   decoded.GrantedScope,
	}
	if decoded.ApproverID != "" {
		approverID, err := id.ParseUserID(decoded.ApproverID)
		if err != nil {
			return service.WorkflowDecision{}, fmt.Errorf("approval decision: %w", err)
		}
		decision.ApproverID = approverID
	}
	return decision, nil
}

// Unavailable rejects every approval with a fixed reason. Used when no
// workflow service is configured, so non-emergency elevations fail closed
// instead of silently auto-approving.
type Unavailable struct {
	Detail string
}

func (u Unavailable) RequestApproval(context.Context, models.ElevationRequest) (service.WorkflowDecision, error) {
	reason := u.Detail
	if reason == "" {
		reason = "no approval workflow configured"
	}
	return service.WorkflowDecision{Approved: false, Reason: reason}, nil
}
