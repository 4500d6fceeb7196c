package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bturcanu/crmbridge/pkg/metrics"
	"github.com/bturcanu/crmbridge/pkg/types"
)

var (
	ErrInvalidSignature = errors.New("calendly: invalid webhook signature")
	ErrMalformedPayload = errors.New("calendly: payload is not a JSON object")
)

type eventStore interface {
	InsertEvent(context.Context, types.EventRecord) error
}

type archiver interface {
	Store(ctx context.Context, source, userID string, body []byte) (string, error)
}

type notifier interface {
	Send(context.Context, types.EventRecord) (string, error)
}

// Delivery is one inbound push.
type Delivery struct {
	UserID    *string
	Body      []byte
	Signature string
}

// ReceiverOptions are the optional collaborators of a Receiver.
type ReceiverOptions struct {
	SigningKey string
	Archive    archiver
	Notifier   notifier
	Metrics    metrics.Recorder
	Logger     *slog.Logger
}

// Receiver projects deliveries into EventRecords and stores them.
type Receiver struct {
	store      eventStore
	signingKey string
	archive    archiver
	notifier   notifier
	metrics    metrics.Recorder
	log        *slog.Logger
	now        func() time.Time
}

func NewReceiver(store eventStore, opts ReceiverOptions) *Receiver {
	r := &Receiver{
		store:      store,
		signingKey: opts.SigningKey,
		archive:    opts.Archive,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		now:        time.Now,
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Receive stores one delivery. Field contents are not validated; anything
// missing is stored as NULL. There is no deduplication of repeat deliveries.
func (r *Receiver) Receive(ctx context.Context, d Delivery) (types.EventRecord, error) {
	if r.signingKey != "" && !VerifySignature(d.Body, d.Signature, r.signingKey, r.now()) {
		r.metrics.WebhookDelivery("calendly", "rejected")
		return types.EventRecord{}, ErrInvalidSignature
	}

	rec, err := Project(d.Body)
	if err != nil {
		r.metrics.WebhookDelivery("calendly", "malformed")
		return types.EventRecord{}, err
	}
	rec.UserID = d.UserID
	if d.UserID == nil {
		r.log.WarnContext(ctx, "calendly delivery without user_id, storing null identity")
	}

	if err := r.store.InsertEvent(ctx, rec); err != nil {
		r.metrics.WebhookDelivery("calendly", "error")
		return types.EventRecord{}, fmt.Errorf("calendly.Receive: %w", err)
	}
	r.metrics.WebhookDelivery("calendly", "ok")

	userID := types.Deref(d.UserID)
	if r.archive != nil {
		if key, err := r.archive.Store(ctx, "calendly", userID, d.Body); err != nil {
			r.log.ErrorContext(ctx, "delivery archive failed", "user_id", userID, "error", err)
		} else {
			r.log.DebugContext(ctx, "delivery archived", "key", key)
		}
	}
	if r.notifier != nil && d.UserID != nil {
		if _, err := r.notifier.Send(ctx, rec); err != nil {
			r.log.ErrorContext(ctx, "delivery notification failed", "user_id", userID, "error", err)
		}
	}
	return rec, nil
}

// Project extracts the stored fields from an invitee.created body. String
// values are stored as-is, other JSON values keep their literal text, and
// absent or null values stay NULL.
func Project(body []byte) (types.EventRecord, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil || root == nil {
		return types.EventRecord{}, ErrMalformedPayload
	}
	invitee := object(root["payload"])
	event := object(invitee["scheduled_event"])

	return types.EventRecord{
		EventName:     literal(event["name"]),
		InviteeName:   literal(invitee["name"]),
		InviteeEmail:  literal(invitee["email"]),
		StartTime:     literal(event["start_time"]),
		EndTime:       literal(event["end_time"]),
		CancelURL:     literal(invitee["cancel_url"]),
		RescheduleURL: literal(invitee["reschedule_url"]),
	}, nil
}

func object(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func literal(raw json.RawMessage) *string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	text := buf.String()
	return &text
}
