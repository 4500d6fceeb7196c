// Package calendly registers webhook subscriptions for linked scheduling
// accounts and receives their deliveries.
package calendly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bturcanu/crmbridge/pkg/broker"
)

const (
	ToolkitVersion = "20251111_01"

	toolGetUser            = "CALENDLY_GET_USER"
	toolCreateSubscription = "CALENDLY_CREATE_WEBHOOK_SUBSCRIPTION"

	EventInviteeCreated = "invitee.created"
	CallbackPath        = "/calendly-webhook"
)

var ErrMissingUser = errors.New("calendly: user_id is required")

type executor interface {
	Execute(context.Context, broker.ExecuteRequest) (*broker.ExecuteResponse, error)
}

// Registrar creates the push subscription that points deliveries back at
// this service.
type Registrar struct {
	broker     executor
	baseURL    string
	signingKey string
	log        *slog.Logger
}

// NewRegistrar creates a registrar. baseURL is the public base of this
// service; signingKey is optional.
func NewRegistrar(b executor, baseURL, signingKey string, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{
		broker:     b,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: signingKey,
		log:        log,
	}
}

// CallbackURL is where deliveries for userID are sent.
func (r *Registrar) CallbackURL(userID string) string {
	return r.baseURL + CallbackPath + "?" + url.Values{"user_id": {userID}}.Encode()
}

type userResource struct {
	Resource struct {
		URI                 string `json:"uri"`
		CurrentOrganization string `json:"current_organization"`
	} `json:"resource"`
}

// Register resolves the user's account and creates one subscription for
// invitee.created. It is not idempotent: every call creates another
// subscription.
func (r *Registrar) Register(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}

	resp, err := r.broker.Execute(ctx, broker.ExecuteRequest{
		Slug:      toolGetUser,
		UserID:    userID,
		Version:   ToolkitVersion,
		Arguments: map[string]any{"uuid": "me"},
	})
	if err != nil {
		return fmt.Errorf("calendly.Register resolve user: %w", err)
	}
	var user userResource
	if err := json.Unmarshal(resp.Data, &user); err != nil {
		return fmt.Errorf("calendly.Register decode user: %w", err)
	}
	if user.Resource.URI == "" || user.Resource.CurrentOrganization == "" {
		return fmt.Errorf("calendly.Register: user resource missing uri or organization")
	}

	args := map[string]any{
		"url":          r.CallbackURL(userID),
		"events":       []string{EventInviteeCreated},
		"scope":        "user",
		"organization": user.Resource.CurrentOrganization,
		"user":         user.Resource.URI,
	}
	if r.signingKey != "" {
		args["signing_key"] = r.signingKey
	}
	if _, err := r.broker.Execute(ctx, broker.ExecuteRequest{
		Slug:      toolCreateSubscription,
		UserID:    userID,
		Version:   ToolkitVersion,
		Arguments: args,
	}); err != nil {
		return fmt.Errorf("calendly.Register create subscription: %w", err)
	}

	r.log.InfoContext(ctx, "webhook subscription created",
		"user_id", userID,
		"organization", user.Resource.CurrentOrganization,
	)
	return nil
}
