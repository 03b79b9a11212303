package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Anylayerorg/landing-sub001/model"
)

func TestInboxSubscribe(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewInboxService(store)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "  Alice@Example.com ", "footer")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.Email != "alice@example.com" {
		t.Errorf("Expected normalised email, got %s", sub.Email)
	}
	if sub.Source != "footer" {
		t.Errorf("Expected source footer, got %s", sub.Source)
	}

	again, err := svc.Subscribe(ctx, "alice@example.com", "hero")
	if err != nil {
		t.Fatalf("Second subscribe failed: %v", err)
	}
	if again.ID != sub.ID {
		t.Error("Expected repeated signup to reuse the subscriber id")
	}
	if len(store.Subscribers()) != 1 {
		t.Errorf("Expected 1 subscriber, got %d", len(store.Subscribers()))
	}
}

func TestInboxSubscribeInvalid(t *testing.T) {
	svc := NewInboxService(NewMemoryStore(0))

	for _, email := range []string{"", "not-an-email", "Bob <bob@example.com>"} {
		if _, err := svc.Subscribe(context.Background(), email, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Subscribe(%q): expected ErrInvalidInput, got %v", email, err)
		}
	}
}

func TestInboxContact(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewInboxService(store)

	msg, err := svc.Contact(context.Background(), model.ContactMessage{
		Name:    " Bob ",
		Email:   "bob@example.com",
		Subject: "Partnership",
		Message: "Hello there",
	})
	if err != nil {
		t.Fatalf("Contact failed: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Errorf("Expected id and timestamp, got %+v", msg)
	}
	if msg.Name != "Bob" {
		t.Errorf("Expected trimmed name, got %q", msg.Name)
	}

	contacts := store.Contacts()
	if len(contacts) != 1 || contacts[0].Subject != "Partnership" {
		t.Errorf("Expected stored contact message, got %v", contacts)
	}
}

func TestInboxContactInvalid(t *testing.T) {
	svc := NewInboxService(NewMemoryStore(0))

	tests := []struct {
		name string
		msg  model.ContactMessage
	}{
		{"missing name", model.ContactMessage{Email: "a@b.co", Message: "hi"}},
		{"bad email", model.ContactMessage{Name: "A", Email: "nope", Message: "hi"}},
		{"missing message", model.ContactMessage{Name: "A", Email: "a@b.co", Message: "   "}},
		{"message too long", model.ContactMessage{Name: "A", Email: "a@b.co", Message: strings.Repeat("x", maxContactMessage+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Contact(context.Background(), tt.msg); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSubscriberIDStable(t *testing.T) {
	if SubscriberID("a@b.co") != SubscriberID("a@b.co") {
		t.Error("Expected deterministic id")
	}
	if SubscriberID("a@b.co") == SubscriberID("c@d.co") {
		t.Error("Expected distinct ids for distinct emails")
	}
}
