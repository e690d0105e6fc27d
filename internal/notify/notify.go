// Package notify delivers elevation lifecycle notifications to approvers
// and requesters. Notifications are best-effort; the elevation service logs
// failures and never blocks a grant on delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	id "keystone/pkg/domain"

	"keystone/internal/elevation/models"
)

// LogNotifier writes notifications to the structured log. Default when no
// webhook is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) NotifyRequested(ctx context.Context, request models.ElevationRequest) error {
	n.Logger.InfoContext(ctx, "elevation requested",
		"requester_id", request.RequesterID,
		"market", request.Market,
		"emergency", request.Emergency,
	)
	return nil
}

func (n *LogNotifier) NotifyApproved(ctx context.Context, approval models.ElevationApproval) error {
	n.Logger.InfoContext(ctx, "elevation approved",
		"elevation_id", approval.ElevationID,
		"approver_id", approval.ApproverID,
		"automatic", approval.Automatic,
		"expires_at", approval.ExpiresAt,
	)
	return nil
}

func (n *LogNotifier) NotifyExpired(ctx context.Context, elevationID id.ElevationID, userID id.UserID) error {
	n.Logger.InfoContext(ctx, "elevation closed",
		"elevation_id", elevationID,
		"user_id", userID,
	)
	return nil
}

// WebhookNotifier posts lifecycle notifications as JSON to an external
// endpoint (chat bridge, paging system).
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier creates a notifier with a bounded request timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *WebhookNotifier) NotifyRequested(ctx context.Context, request models.ElevationRequest) error {
	return n.post(ctx, map[string]any{
		"event":        "elevation_requested",
		"requester_id": request.RequesterID.String(),
		"market":       string(request.Market),
		"emergency":    request.Emergency,
		"roles":        request.Roles,
		"scopes":       request.Scopes,
	})
}

func (n *WebhookNotifier) NotifyApproved(ctx context.Context, approval models.ElevationApproval) error {
	return n.post(ctx, map[string]any{
		"event":        "elevation_approved",
		"elevation_id": approval.ElevationID.String(),
		"approver_id":  approval.ApproverID.String(),
		"automatic":    approval.Automatic,
		"expires_at":   approval.ExpiresAt,
	})
}

func (n *WebhookNotifier) NotifyExpired(ctx context.Context, elevationID id.ElevationID, userID id.UserID) error {
	return n.post(ctx, map[string]any{
		"event":        "elevation_expired",
		"elevation_id": elevationID.String(),
		"user_id":      userID.String(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}
