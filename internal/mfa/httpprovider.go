package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "keystone/pkg/domain"
)

// HTTPProvider talks to the platform MFA service over its REST API.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given base URL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type statusResponse struct {
	Enabled        bool      `json:"enabled"`
	PrimaryMethod  string    `json:"primary_method"`
	BackupMethods  []string  `json:"backup_methods"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
}

func (p *HTTPProvider) GetStatus(ctx context.Context, userID id.UserID) (Status, error) {
	var resp statusResponse
	err := p.do(ctx, http.MethodGet, "/v1/users/"+userID.String()+"/mfa", nil, &resp)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Enabled:        resp.Enabled,
		PrimaryMethod:  resp.PrimaryMethod,
		BackupMethods:  resp.BackupMethods,
		LastVerifiedAt: resp.LastVerifiedAt,
	}, nil
}

func (p *HTTPProvider) StartChallenge(ctx context.Context, userID id.UserID, challengeType string) (string, error) {
	body := map[string]string{"type": challengeType}
	var resp struct {
		ChallengeID string `json:"challenge_id"`
	}
	err := p.do(ctx, http.MethodPost, "/v1/users/"+userID.String()+"/mfa/challenges", body, &resp)
	if err != nil {
		return "", err
	}
	return resp.ChallengeID, nil
}

func (p *HTTPProvider) VerifyToken(ctx context.Context, userID id.UserID, challengeID, token string) (bool, error) {
	body := map[string]string{"challenge_id": challengeID, "token": token}
	var resp struct {
		Verified bool `json:"verified"`
	}
	err := p.do(ctx, http.MethodPost, "/v1/users/"+userID.String()+"/mfa/verify", body, &resp)
	if err != nil {
		return false, err
	}
	return resp.Verified, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("mfa provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotEnrolled
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mfa provider returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
