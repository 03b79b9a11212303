package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/google/uuid"
)

const maxContactMessage = 5000

// InboxService captures newsletter signups and contact form messages
type InboxService struct {
	store InboxStore
}

func NewInboxService(store InboxStore) *InboxService {
	return &InboxService{store: store}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return email, nil
}

// SubscriberID is stable per address so a repeated signup overwrites
func SubscriberID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

func (s *InboxService) Subscribe(ctx context.Context, email, source string) (*model.Subscriber, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	sub := &model.Subscriber{
		ID:        SubscriberID(email),
		Email:     email,
		Source:    strings.TrimSpace(source),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscriber: %w", err)
	}

	logger.Info(ctx, "subscriber captured", "subscriber_id", sub.ID, "source", sub.Source)
	return sub, nil
}

func (s *InboxService) Contact(ctx context.Context, msg model.ContactMessage) (*model.ContactMessage, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Message = strings.TrimSpace(msg.Message)

	if msg.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(msg.Email)
	if err != nil {
		return nil, err
	}
	msg.Email = email
	if msg.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(msg.Message) > maxContactMessage {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxContactMessage)
	}

	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()
	if err := s.store.AddContact(ctx, &msg); err != nil {
		return nil, fmt.Errorf("failed to save contact message: %w", err)
	}

	logger.Info(ctx, "contact message received", "message_id", msg.ID)
	return &msg, nil
}
