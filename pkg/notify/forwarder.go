// Package notify composes event and reply summaries and posts them to the
// user's messaging channel through the tool broker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bturcanu/crmbridge/pkg/broker"
	"github.com/bturcanu/crmbridge/pkg/metrics"
	"github.com/bturcanu/crmbridge/pkg/types"
)

const (
	// SlackVersion pins the send-message tool schema.
	SlackVersion = "20251118_00"

	toolSendMessage = "SLACK_SEND_MESSAGE"

	// StatusSent is returned once the broker has accepted a message.
	StatusSent = "sent"
)

var (
	ErrMissingUser = errors.New("notify: record has no user_id")
	// ErrSettingsLookup wraps any failure to resolve the destination channel.
	ErrSettingsLookup = errors.New("notify: settings lookup failed")
)

type executor interface {
	Execute(context.Context, broker.ExecuteRequest) (*broker.ExecuteResponse, error)
}

type settingsStore interface {
	LookupSettings(ctx context.Context, userID string) (*types.UserSettings, error)
}

// ReplyRoute is the fixed Slack identity and channel email replies go to.
type ReplyRoute struct {
	UserID    string
	ChannelID string
}

// Forwarder sends composed messages to a resolved channel.
type Forwarder struct {
	broker   executor
	settings settingsStore
	route    ReplyRoute
	metrics  metrics.Recorder
	log      *slog.Logger
}

func NewForwarder(b executor, settings settingsStore, route ReplyRoute, rec metrics.Recorder, log *slog.Logger) *Forwarder {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{broker: b, settings: settings, route: route, metrics: rec, log: log}
}

// Send looks up the record owner's settings, composes the event summary and
// posts it to their channel. Lookup, composition and dispatch run strictly
// in that order; a lookup failure means nothing is sent.
func (f *Forwarder) Send(ctx context.Context, rec types.EventRecord) (string, error) {
	userID := types.Deref(rec.UserID)
	if userID == "" {
		return "", ErrMissingUser
	}
	settings, err := f.settings.LookupSettings(ctx, userID)
	if err != nil {
		f.metrics.Notification("event", "lookup_failed")
		return "", fmt.Errorf("notify.Send: %w: %w", ErrSettingsLookup, err)
	}

	text := Compose(types.Deref(settings.MessageFormat), rec)
	if err := f.post(ctx, userID, settings.ChannelID, text); err != nil {
		f.metrics.Notification("event", "error")
		return "", fmt.Errorf("notify.Send: %w", err)
	}
	f.metrics.Notification("event", "ok")
	f.log.InfoContext(ctx, "event notification sent", "user_id", userID, "channel", settings.ChannelID)
	return StatusSent, nil
}

// ForwardReply posts an email reply summary to the configured reply route.
func (f *Forwarder) ForwardReply(ctx context.Context, reply types.EmailReply) (string, error) {
	if err := f.post(ctx, f.route.UserID, f.route.ChannelID, ComposeReply(reply)); err != nil {
		f.metrics.Notification("reply", "error")
		return "", fmt.Errorf("notify.ForwardReply: %w", err)
	}
	f.metrics.Notification("reply", "ok")
	f.log.InfoContext(ctx, "reply notification sent", "campaign", reply.CampaignName)
	return StatusSent, nil
}

func (f *Forwarder) post(ctx context.Context, userID, channel, text string) error {
	_, err := f.broker.Execute(ctx, broker.ExecuteRequest{
		Slug:      toolSendMessage,
		UserID:    userID,
		Version:   SlackVersion,
		Arguments: map[string]any{"channel": channel, "text": text},
	})
	return err
}

// Compose renders the event summary. Nil fields render empty.
func Compose(format string, rec types.EventRecord) string {
	return fmt.Sprintf(
		"%s\n\nEvent: %s\nInvitee: %s (%s)\nStart - end: %s - %s\nCancel: %s\nReschedule: %s",
		format,
		types.Deref(rec.EventName),
		types.Deref(rec.InviteeName), types.Deref(rec.InviteeEmail),
		types.Deref(rec.StartTime), types.Deref(rec.EndTime),
		types.Deref(rec.CancelURL),
		types.Deref(rec.RescheduleURL),
	)
}

// ComposeReply renders the email reply summary.
func ComposeReply(r types.EmailReply) string {
	return fmt.Sprintf(
		"New email reply received!\n\nCampaign: %s\nCompany: %s\nLead: %s\nReply message:\n%s\nOpen in Instantly: %s",
		r.CampaignName, CompanyFromEmail(r.LeadEmail), r.LeadEmail, r.ReplyTextSnippet, r.UniboxURL,
	)
}

// CompanyFromEmail returns the first label of the address's domain,
// "acme" for "jo@acme.co.uk". Addresses without a domain yield "".
func CompanyFromEmail(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	company, _, _ := strings.Cut(domain, ".")
	return company
}
