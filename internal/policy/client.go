package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEvaluator calls the central policy evaluation service. Evaluation is
// fail-closed at the call site: the Gate surfaces transport errors instead
// of defaulting to allow.
type HTTPEvaluator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEvaluator creates an evaluator client against the given base URL.
func NewHTTPEvaluator(baseURL string) *HTTPEvaluator {
	return &HTTPEvaluator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type evaluateRequest struct {
	PolicyID string         `json:"policy_id"`
	Input    map[string]any `json:"input"`
}

type evaluateResponse struct {
	Allowed    bool           `json:"allowed"`
	Reasons    []string       `json:"reasons,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// Evaluate submits the input document for the given policy identifier.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, policyID string, input map[string]any) (Decision, error) {
	body, err := json.Marshal(evaluateRequest{PolicyID: policyID, Input: input})
	if err != nil {
		return Decision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("policy evaluator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("policy evaluator returned %d", resp.StatusCode)
	}

	var decoded evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Decision{}, fmt.Errorf("decode policy decision: %w", err)
	}
	return Decision{
		Allowed:    decoded.Allowed,
		Reasons:    decoded.Reasons,
		Conditions: decoded.Conditions,
	}, nil
}
