package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	calls atomic.Int32
}

func (v *stubVerifier) Verify(ctx context.Context, req service.VerificationRequest) (*service.VerificationResponse, error) {
	v.calls.Add(1)
	return &service.VerificationResponse{StatusCode: http.StatusOK}, nil
}

// flakyStore fails the next patchFailures patches and the next
// publishFailures publishes
type flakyStore struct {
	*service.MemoryStore
	patchFailures   atomic.Int32
	publishFailures atomic.Int32
}

func (s *flakyStore) Patch(ctx context.Context, id string, patch model.SubmissionPatch) error {
	if s.patchFailures.Add(-1) >= 0 {
		return errors.New("store timeout")
	}
	return s.MemoryStore.Patch(ctx, id, patch)
}

func (s *flakyStore) Publish(ctx context.Context, id string) error {
	if s.publishFailures.Add(-1) >= 0 {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Publish(ctx, id)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 1},
		Store:  config.StoreConfig{Driver: "memory"},
		Review: config.ReviewConfig{BatchConcurrency: 2},
	}
}

func newTestApp(t *testing.T, subs ...*model.Submission) (*app, *flakyStore, *stubVerifier) {
	t.Helper()

	store := &flakyStore{MemoryStore: service.NewMemoryStore(0)}
	for _, s := range subs {
		if err := store.Create(context.Background(), s); err != nil {
			t.Fatalf("Failed to seed store: %v", err)
		}
	}
	verifier := &stubVerifier{}
	return newAppWith(testConfig(), store, store.MemoryStore, verifier, nil), store, verifier
}

func pendingSubmission(id string) *model.Submission {
	return &model.Submission{
		ID:          id,
		Address:     "0x52908400098527886E0F7030069857D2E4169EE7",
		TaskID:      "task-1",
		TaskTitle:   "Follow on X",
		SubmittedAt: time.Now(),
		Status:      model.StatusPending,
	}
}
