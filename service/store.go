package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/google/uuid"
)

// DocumentStore holds submission records. Get returns the draft when one
// exists, otherwise the published document, and (nil, nil) when neither
// does. Patch only touches the draft; Publish makes it visible.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*model.Submission, error)
	Patch(ctx context.Context, id string, patch model.SubmissionPatch) error
	Publish(ctx context.Context, id string) error
	Create(ctx context.Context, sub *model.Submission) error
	List(ctx context.Context, status string) ([]*model.Submission, error)
}

// InboxStore receives newsletter signups and contact messages
type InboxStore interface {
	AddSubscriber(ctx context.Context, sub *model.Subscriber) error
	AddContact(ctx context.Context, msg *model.ContactMessage) error
}

// NewDocumentStore builds the store selected by cfg.Store.Driver
func NewDocumentStore(ctx context.Context, cfg *config.Config) (DocumentStore, InboxStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		s := NewMemoryStore(cfg.Store.MaxSubmissions)
		return s, s, nil
	case "cms":
		s := NewCMSStore(&cfg.CMS)
		return s, s, nil
	case "dynamodb":
		s, err := NewDynamoStore(ctx, &cfg.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// MemoryStore is an in-memory document store with draft/published
// semantics. Used for local development and tests.
type MemoryStore struct {
	published      map[string]*model.Submission
	drafts         map[string]*model.Submission
	subscribers    map[string]*model.Subscriber
	contacts       []*model.ContactMessage
	mu             sync.RWMutex
	maxSubmissions int // Maximum submissions to keep, 0 = unlimited
}

func NewMemoryStore(maxSubmissions int) *MemoryStore {
	if maxSubmissions < 0 {
		maxSubmissions = 0
	}
	slog.Info("memory store initialized", "max_submissions", maxSubmissions)
	return &MemoryStore{
		published:      make(map[string]*model.Submission),
		drafts:         make(map[string]*model.Submission),
		subscribers:    make(map[string]*model.Subscriber),
		maxSubmissions: maxSubmissions,
	}
}

func (s *MemoryStore) Create(ctx context.Context, sub *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.published[sub.ID]; exists {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}

	stored := sub.Clone()
	stored.Revision = uuid.New().String()
	stored.Draft = false
	s.published[sub.ID] = stored
	sub.Revision = stored.Revision

	s.cleanupIfNeeded()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.drafts[id]; ok {
		c := d.Clone()
		c.Draft = true
		return c, nil
	}
	if p, ok := s.published[id]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) Patch(ctx context.Context, id string, patch model.SubmissionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[id]
	if !ok {
		p, ok := s.published[id]
		if !ok {
			return ErrNotFound
		}
		draft = p.Clone()
	}

	if patch.IfRevision != "" && patch.IfRevision != draft.Revision {
		return fmt.Errorf("%w: have %s, want %s", ErrRevisionConflict, draft.Revision, patch.IfRevision)
	}

	patch.Apply(draft)
	s.drafts[id] = draft
	return nil
}

func (s *MemoryStore) Publish(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[id]
	if !ok {
		if _, exists := s.published[id]; exists {
			return nil // nothing to publish
		}
		return ErrNotFound
	}

	draft.Revision = uuid.New().String()
	draft.Draft = false
	s.published[id] = draft
	delete(s.drafts, id)
	return nil
}

// List returns published submissions, newest first. An empty status
// matches every submission.
func (s *MemoryStore) List(ctx context.Context, status string) ([]*model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Submission, 0, len(s.published))
	for _, p := range s.published {
		if status == "" || p.Status == status {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	return result, nil
}

// Count returns the number of published submissions
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.published)
}

func (s *MemoryStore) AddSubscriber(ctx context.Context, sub *model.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sub
	s.subscribers[sub.ID] = &c
	return nil
}

func (s *MemoryStore) AddContact(ctx context.Context, msg *model.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *msg
	s.contacts = append(s.contacts, &c)
	return nil
}

// Subscribers returns a snapshot of captured signups
func (s *MemoryStore) Subscribers() []*model.Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		result = append(result, sub)
	}
	return result
}

// Contacts returns a snapshot of received contact messages
func (s *MemoryStore) Contacts() []*model.ContactMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.ContactMessage(nil), s.contacts...)
}

// cleanupIfNeeded removes the oldest reviewed submissions once the store
// exceeds maxSubmissions. Pending submissions are never evicted.
// Must be called with lock held
func (s *MemoryStore) cleanupIfNeeded() {
	if s.maxSubmissions <= 0 {
		return // Unlimited
	}

	if len(s.published) <= s.maxSubmissions {
		return
	}

	reviewed := make([]*model.Submission, 0, len(s.published))
	for _, p := range s.published {
		if p.IsTerminal() {
			reviewed = append(reviewed, p)
		}
	}
	sort.Slice(reviewed, func(i, j int) bool {
		return reviewed[i].SubmittedAt.Before(reviewed[j].SubmittedAt)
	})

	removeCount := len(s.published) - s.maxSubmissions
	for i := 0; i < removeCount && i < len(reviewed); i++ {
		slog.Info("auto-cleaning reviewed submission",
			"submission_id", reviewed[i].ID,
			"submitted_at", reviewed[i].SubmittedAt.Format(time.RFC3339),
		)
		delete(s.published, reviewed[i].ID)
		delete(s.drafts, reviewed[i].ID)
	}
}

var (
	_ DocumentStore = (*MemoryStore)(nil)
	_ InboxStore    = (*MemoryStore)(nil)
)
