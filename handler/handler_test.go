package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
)

// stubVerifier accepts every decision unless err is set
type stubVerifier struct {
	calls atomic.Int32
	err   error
}

func (v *stubVerifier) Verify(ctx context.Context, req service.VerificationRequest) (*service.VerificationResponse, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	return &service.VerificationResponse{StatusCode: http.StatusOK, Body: map[string]any{"ok": true}}, nil
}

// flakyStore fails every publish while broken is set and every patch
// while patchBroken is set
type flakyStore struct {
	*service.MemoryStore
	broken      atomic.Bool
	patchBroken atomic.Bool
}

func (s *flakyStore) Patch(ctx context.Context, id string, patch model.SubmissionPatch) error {
	if s.patchBroken.Load() {
		return errors.New("cms timeout")
	}
	return s.MemoryStore.Patch(ctx, id, patch)
}

func (s *flakyStore) Publish(ctx context.Context, id string) error {
	if s.broken.Load() {
		return errors.New("cms unavailable")
	}
	return s.MemoryStore.Publish(ctx, id)
}

type testEnv struct {
	router   *gin.Engine
	store    *flakyStore
	verifier *stubVerifier
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

func newTestEnv(t *testing.T, subs ...*model.Submission) *testEnv {
	t.Helper()

	store := &flakyStore{MemoryStore: service.NewMemoryStore(0)}
	for _, s := range subs {
		if err := store.Create(context.Background(), s); err != nil {
			t.Fatalf("Failed to seed store: %v", err)
		}
	}
	verifier := &stubVerifier{}
	controller := service.NewController(store, verifier, &config.ReviewConfig{BatchConcurrency: 2})

	submissions := NewSubmissionHandler(service.NewSubmissionService(store, nil), controller)
	reviews := NewReviewHandler(controller)
	inbox := NewInboxHandler(service.NewInboxService(store.MemoryStore))

	router := gin.New()
	api := router.Group("/api")
	api.POST("/submissions", submissions.Create)
	api.POST("/subscribe", inbox.Subscribe)
	api.POST("/contact", inbox.Contact)
	api.GET("/submissions", submissions.List)
	api.GET("/submissions/:id", submissions.Get)
	api.POST("/submissions/:id/approve", reviews.Approve)
	api.POST("/submissions/:id/reject", reviews.Reject)
	api.POST("/submissions/:id/resolve", reviews.Resolve)
	api.POST("/submissions/:id/acknowledge", reviews.Acknowledge)
	api.POST("/submissions/approve-batch", reviews.ApproveBatch)
	api.GET("/reviews/unresolved", reviews.Unresolved)

	return &testEnv{router: router, store: store, verifier: verifier}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return out
}
