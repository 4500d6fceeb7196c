package calendly

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bturcanu/crmbridge/pkg/broker"
)

// fakeScheduler stands in for the broker and keeps the subscriptions the
// scheduling service would hold.
type fakeScheduler struct {
	mu            sync.Mutex
	calls         []broker.ExecuteRequest
	subscriptions []map[string]any
	getUserErr    error
	createErr     error
}

func (f *fakeScheduler) Execute(_ context.Context, req broker.ExecuteRequest) (*broker.ExecuteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	switch req.Slug {
	case toolGetUser:
		if f.getUserErr != nil {
			return nil, f.getUserErr
		}
		return &broker.ExecuteResponse{
			Successful: true,
			Data:       json.RawMessage(`{"resource":{"uri":"https://api.calendly.com/users/U1","current_organization":"https://api.calendly.com/organizations/O1"}}`),
		}, nil
	case toolCreateSubscription:
		if f.createErr != nil {
			return nil, f.createErr
		}
		f.subscriptions = append(f.subscriptions, req.Arguments)
		return &broker.ExecuteResponse{Successful: true, Data: json.RawMessage(`{}`)}, nil
	}
	return nil, errors.New("unexpected tool " + req.Slug)
}

func TestRegister_CreatesOneSubscription(t *testing.T) {
	f := &fakeScheduler{}
	r := NewRegistrar(f, "https://bridge.example.com/", "", nil)

	if err := r.Register(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 broker calls, got %d", len(f.calls))
	}
	if len(f.subscriptions) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(f.subscriptions))
	}
	sub := f.subscriptions[0]
	if sub["url"] != "https://bridge.example.com/calendly-webhook?user_id=u1" {
		t.Errorf("unexpected callback url %v", sub["url"])
	}
	events, _ := sub["events"].([]string)
	if len(events) != 1 || events[0] != "invitee.created" {
		t.Errorf("unexpected events %v", sub["events"])
	}
	if sub["organization"] != "https://api.calendly.com/organizations/O1" || sub["user"] != "https://api.calendly.com/users/U1" {
		t.Errorf("unexpected scope ids %v", sub)
	}
	if sub["scope"] != "user" {
		t.Errorf("expected user scope, got %v", sub["scope"])
	}
	if _, ok := sub["signing_key"]; ok {
		t.Error("expected no signing_key without configuration")
	}
}

// Registration is not idempotent; a second call duplicates the subscription.
// This asserts the known gap so a change in behaviour is noticed.
func TestRegister_RepeatDuplicatesSubscription(t *testing.T) {
	f := &fakeScheduler{}
	r := NewRegistrar(f, "https://bridge.example.com", "", nil)

	for range 2 {
		if err := r.Register(context.Background(), "u1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(f.subscriptions) != 2 {
		t.Fatalf("expected duplicate subscriptions (known gap), got %d", len(f.subscriptions))
	}
}

func TestRegister_ResolveFailureCreatesNothing(t *testing.T) {
	f := &fakeScheduler{getUserErr: broker.ErrToolFailed}
	r := NewRegistrar(f, "https://bridge.example.com", "", nil)

	if err := r.Register(context.Background(), "u1"); !errors.Is(err, broker.ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
	if len(f.subscriptions) != 0 || len(f.calls) != 1 {
		t.Errorf("expected only the resolve call, got %d calls", len(f.calls))
	}
}

func TestRegister_CreateFailurePropagates(t *testing.T) {
	f := &fakeScheduler{createErr: errors.New("quota")}
	r := NewRegistrar(f, "https://bridge.example.com", "", nil)

	if err := r.Register(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegister_EmptyUser(t *testing.T) {
	f := &fakeScheduler{}
	r := NewRegistrar(f, "https://bridge.example.com", "", nil)

	if err := r.Register(context.Background(), ""); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no broker calls, got %d", len(f.calls))
	}
}

func TestRegister_SigningKey(t *testing.T) {
	f := &fakeScheduler{}
	r := NewRegistrar(f, "https://bridge.example.com", "sk", nil)

	if err := r.Register(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.subscriptions[0]["signing_key"] != "sk" {
		t.Errorf("expected signing key to be passed, got %v", f.subscriptions[0]["signing_key"])
	}
}
