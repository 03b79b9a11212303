package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
)

func TestNewVerificationClient(t *testing.T) {
	cfg := &config.VerificationConfig{
		WebhookURL:     "https://scoring.test/review",
		Secret:         "shared",
		TimeoutSeconds: 3,
	}

	client := NewVerificationClient(cfg)
	if client == nil {
		t.Fatal("Expected non-nil client")
	}
	if client.config != cfg {
		t.Error("Expected config to be set")
	}
	if client.httpClient.Timeout != 3*time.Second {
		t.Errorf("Expected 3s timeout, got %v", client.httpClient.Timeout)
	}

	if NewVerificationClient(&config.VerificationConfig{}).httpClient.Timeout != 15*time.Second {
		t.Error("Expected default timeout of 15s")
	}
}

func TestVerificationClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("Expected JSON content type")
		}
		if r.Header.Get("Idempotency-Key") != "sub-1:reject" {
			t.Errorf("Expected idempotency key, got %q", r.Header.Get("Idempotency-Key"))
		}
		if r.Header.Get("X-Request-ID") != "req-7" {
			t.Errorf("Expected request id to be forwarded, got %q", r.Header.Get("X-Request-ID"))
		}

		var body VerificationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if body.Action != "reject" || body.SubmissionID != "sub-1" || body.Address != "0xabc" || body.TaskID != "task-9" {
			t.Errorf("Unexpected payload: %+v", body)
		}
		if body.ReviewNote != "incomplete proof" {
			t.Errorf("Expected review note, got %q", body.ReviewNote)
		}
		if body.Secret != "shared" {
			t.Errorf("Expected secret from config, got %q", body.Secret)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "points": 10})
	}))
	defer server.Close()

	client := NewVerificationClient(&config.VerificationConfig{WebhookURL: server.URL, Secret: "shared"})
	resp, err := client.Verify(logger.WithRequestID(context.Background(), "req-7"), VerificationRequest{
		Action:       "reject",
		SubmissionID: "sub-1",
		Address:      "0xabc",
		TaskID:       "task-9",
		ReviewNote:   "incomplete proof",
		Secret:       "ignored",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Body["ok"] != true {
		t.Errorf("Expected decoded body, got %v", resp.Body)
	}
}

func TestVerificationClientNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"bad secret"}`))
	}))
	defer server.Close()

	client := NewVerificationClient(&config.VerificationConfig{WebhookURL: server.URL})
	_, err := client.Verify(context.Background(), VerificationRequest{Action: "approve", SubmissionID: "s"})

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
	if backendErr.Code != http.StatusForbidden {
		t.Errorf("Expected code 403, got %d", backendErr.Code)
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "bad secret") {
		t.Errorf("Expected status and body in message, got %q", err.Error())
	}
	if !errors.Is(err, ErrBackendRejected) {
		t.Error("Expected ErrBackendRejected")
	}
}

func TestVerificationClientMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewVerificationClient(&config.VerificationConfig{WebhookURL: server.URL})
	_, err := client.Verify(context.Background(), VerificationRequest{Action: "approve"})

	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("Expected ErrBackendRejected for malformed body, got %v", err)
	}
	if !strings.Contains(err.Error(), "not json") {
		t.Errorf("Expected raw body in message, got %q", err.Error())
	}
}

func TestVerificationClientNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewVerificationClient(&config.VerificationConfig{WebhookURL: server.URL})
	resp, err := client.Verify(context.Background(), VerificationRequest{Action: "approve"})
	if err != nil {
		t.Fatalf("Expected 204 to be success, got %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
}

func TestVerificationClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewVerificationClient(&config.VerificationConfig{WebhookURL: server.URL})
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.Verify(context.Background(), VerificationRequest{Action: "approve"})
	if !errors.Is(err, ErrBackendRejected) {
		t.Errorf("Expected timeout to be a backend failure, got %v", err)
	}
}

func TestVerificationClientNetworkError(t *testing.T) {
	client := NewVerificationClient(&config.VerificationConfig{
		WebhookURL:     "http://invalid-host-that-does-not-exist:9999",
		TimeoutSeconds: 1,
	})

	_, err := client.Verify(context.Background(), VerificationRequest{Action: "approve"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Expected BackendError for network error, got %v", err)
	}
	if backendErr.Code != 0 {
		t.Errorf("Expected no status code, got %d", backendErr.Code)
	}
}
