package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
)

// VerificationRequest is the review webhook payload
type VerificationRequest struct {
	Action       string `json:"action"`
	SubmissionID string `json:"submissionId"`
	Address      string `json:"address"`
	TaskID       string `json:"taskId"`
	ReviewNote   string `json:"reviewNote"`
	Secret       string `json:"secret"`
}

// IdempotencyKey identifies one review decision for one submission
func (r VerificationRequest) IdempotencyKey() string {
	return r.SubmissionID + ":" + r.Action
}

// VerificationResponse is the backend's decoded reply. Its content is
// not interpreted by the review workflow.
type VerificationResponse struct {
	StatusCode int
	Body       map[string]any
}

// Verifier confirms a review decision with the scoring backend
type Verifier interface {
	Verify(ctx context.Context, req VerificationRequest) (*VerificationResponse, error)
}

type VerificationClient struct {
	config     *config.VerificationConfig
	httpClient *http.Client
}

func NewVerificationClient(cfg *config.VerificationConfig) *VerificationClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &VerificationClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Verify posts the decision to the webhook once. The shared secret from
// the client configuration is always attached. Any non-2xx status,
// transport error or undecodable body is returned as *BackendError.
func (c *VerificationClient) Verify(ctx context.Context, vr VerificationRequest) (*VerificationResponse, error) {
	vr.Secret = c.config.Secret

	jsonData, err := json.Marshal(vr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", vr.IdempotencyKey())
	if requestID := logger.RequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BackendError{Code: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &BackendError{Code: resp.StatusCode, Body: string(body)}
	}

	result := &VerificationResponse{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return result, nil
	}
	if err := json.Unmarshal(body, &result.Body); err != nil {
		return nil, &BackendError{Code: resp.StatusCode, Body: string(body), Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return result, nil
}

var _ Verifier = (*VerificationClient)(nil)
