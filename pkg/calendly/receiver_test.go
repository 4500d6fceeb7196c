package calendly

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bturcanu/crmbridge/pkg/types"
)

type fakeEventStore struct {
	inserted []types.EventRecord
	err      error
}

func (f *fakeEventStore) InsertEvent(_ context.Context, rec types.EventRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

type fakeArchive struct {
	keys []string
	err  error
}

func (f *fakeArchive) Store(_ context.Context, source, userID string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := source + "/" + userID
	f.keys = append(f.keys, key)
	return key, nil
}

type fakeNotifier struct {
	sent []types.EventRecord
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, rec types.EventRecord) (string, error) {
	f.sent = append(f.sent, rec)
	return "sent", f.err
}

const fullBody = `{
  "event": "invitee.created",
  "payload": {
    "name": "N",
    "email": "n@x.com",
    "cancel_url": "u1",
    "reschedule_url": "u2",
    "scheduled_event": {"name": "E", "start_time": "t0", "end_time": "t1"}
  }
}`

func TestProject_PassThrough(t *testing.T) {
	rec, err := Project([]byte(fullBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := map[string]*string{
		"event_name": rec.EventName, "invitee_name": rec.InviteeName, "invitee_email": rec.InviteeEmail,
		"start_time": rec.StartTime, "end_time": rec.EndTime, "cancel_url": rec.CancelURL, "reschedule_url": rec.RescheduleURL,
	}
	want := map[string]string{
		"event_name": "E", "invitee_name": "N", "invitee_email": "n@x.com",
		"start_time": "t0", "end_time": "t1", "cancel_url": "u1", "reschedule_url": "u2",
	}
	for k, w := range want {
		if got[k] == nil || *got[k] != w {
			t.Errorf("%s: expected %q, got %v", k, w, got[k])
		}
	}
}

func TestProject_MissingFieldsAreNull(t *testing.T) {
	rec, err := Project([]byte(`{"payload":{"name":"N","email":null,"scheduled_event":"gone"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if types.Deref(rec.InviteeName) != "N" {
		t.Errorf("expected invitee name N")
	}
	for name, v := range map[string]*string{
		"event_name": rec.EventName, "invitee_email": rec.InviteeEmail, "start_time": rec.StartTime,
		"end_time": rec.EndTime, "cancel_url": rec.CancelURL, "reschedule_url": rec.RescheduleURL,
	} {
		if v != nil {
			t.Errorf("%s: expected nil, got %q", name, *v)
		}
	}
}

func TestProject_NonStringValuesKeepJSONText(t *testing.T) {
	rec, err := Project([]byte(`{"payload":{"name":true,"email":{"a": 1},"scheduled_event":{"start_time":1718000000,"end_time":1.50}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := []struct {
		field string
		got   *string
		want  string
	}{
		{"invitee_name", rec.InviteeName, "true"},
		{"invitee_email", rec.InviteeEmail, `{"a":1}`},
		{"start_time", rec.StartTime, "1718000000"},
		{"end_time", rec.EndTime, "1.50"},
	}
	for _, tt := range tests {
		if tt.got == nil || *tt.got != tt.want {
			t.Errorf("%s: expected %q, got %v", tt.field, tt.want, tt.got)
		}
	}
	if rec.EventName != nil {
		t.Errorf("expected missing event_name to stay nil")
	}
}

func TestProject_EmptyObject(t *testing.T) {
	rec, err := Project([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.EventName != nil || rec.InviteeName != nil {
		t.Error("expected all fields nil")
	}
}

func TestProject_NotAnObject(t *testing.T) {
	for _, body := range []string{`[1,2]`, `null`, `"x"`, `{bad`} {
		if _, err := Project([]byte(body)); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", body, err)
		}
	}
}

func TestReceive_InsertsOnce(t *testing.T) {
	st := &fakeEventStore{}
	arc := &fakeArchive{}
	r := NewReceiver(st, ReceiverOptions{Archive: arc})

	rec, err := r.Receive(context.Background(), Delivery{UserID: types.Ptr("u1"), Body: []byte(fullBody)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(st.inserted))
	}
	if types.Deref(st.inserted[0].UserID) != "u1" || types.Deref(rec.EventName) != "E" {
		t.Errorf("unexpected record %+v", st.inserted[0])
	}
	if len(arc.keys) != 1 || arc.keys[0] != "calendly/u1" {
		t.Errorf("expected archive upload, got %v", arc.keys)
	}
}

func TestReceive_RepeatDeliveryIsNotDeduplicated(t *testing.T) {
	st := &fakeEventStore{}
	r := NewReceiver(st, ReceiverOptions{})

	for range 2 {
		if _, err := r.Receive(context.Background(), Delivery{UserID: types.Ptr("u1"), Body: []byte(fullBody)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(st.inserted) != 2 {
		t.Errorf("expected 2 inserts, got %d", len(st.inserted))
	}
}

func TestReceive_NullIdentityStored(t *testing.T) {
	st := &fakeEventStore{}
	n := &fakeNotifier{}
	r := NewReceiver(st, ReceiverOptions{Notifier: n})

	if _, err := r.Receive(context.Background(), Delivery{Body: []byte(fullBody)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.inserted[0].UserID != nil {
		t.Error("expected nil user id")
	}
	if len(n.sent) != 0 {
		t.Error("expected no notification without a user")
	}
}

func TestReceive_StoreFailurePropagates(t *testing.T) {
	arc := &fakeArchive{}
	r := NewReceiver(&fakeEventStore{err: errors.New("db down")}, ReceiverOptions{Archive: arc})

	if _, err := r.Receive(context.Background(), Delivery{UserID: types.Ptr("u1"), Body: []byte(fullBody)}); err == nil {
		t.Fatal("expected error")
	}
	if len(arc.keys) != 0 {
		t.Error("expected no archive after failed insert")
	}
}

func TestReceive_SideChannelFailuresAreLogged(t *testing.T) {
	st := &fakeEventStore{}
	n := &fakeNotifier{err: errors.New("slack down")}
	r := NewReceiver(st, ReceiverOptions{Archive: &fakeArchive{err: errors.New("s3 down")}, Notifier: n})

	if _, err := r.Receive(context.Background(), Delivery{UserID: types.Ptr("u1"), Body: []byte(fullBody)}); err != nil {
		t.Fatalf("expected success after insert, got %v", err)
	}
	if len(n.sent) != 1 {
		t.Errorf("expected notifier invoked once, got %d", len(n.sent))
	}
}

func TestReceive_Signature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	st := &fakeEventStore{}
	r := NewReceiver(st, ReceiverOptions{SigningKey: "sk"})
	r.now = func() time.Time { return now }

	body := []byte(fullBody)
	ts := fmt.Sprintf("%d", now.Unix())
	good := fmt.Sprintf("t=%s,v1=%s", ts, Sign(body, ts, "sk"))

	if _, err := r.Receive(context.Background(), Delivery{UserID: types.Ptr("u1"), Body: body, Signature: "t=1,v1=00"}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(st.inserted) != 0 {
		t.Fatal("expected no insert on bad signature")
	}
	if _, err := r.Receive(context.Background(), Delivery{UserID: types.Ptr("u1"), Body: body, Signature: good}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"a":1}`)
	ts := "1700000000"
	sig := Sign(body, ts, "key")

	tests := []struct {
		name   string
		header string
		key    string
		now    time.Time
		want   bool
	}{
		{"valid", "t=" + ts + ",v1=" + sig, "key", now, true},
		{"valid with spaces", "t=" + ts + ", v1=" + sig, "key", now, true},
		{"wrong key", "t=" + ts + ",v1=" + sig, "other", now, false},
		{"stale", "t=" + ts + ",v1=" + sig, "key", now.Add(10 * time.Minute), false},
		{"missing v1", "t=" + ts, "key", now, false},
		{"empty key", "t=" + ts + ",v1=" + sig, "", now, false},
		{"garbage", "nonsense", "key", now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(body, tt.header, tt.key, tt.now); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}
