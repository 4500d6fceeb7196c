package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bturcanu/crmbridge/pkg/auth"
	"github.com/bturcanu/crmbridge/pkg/calendly"
	"github.com/bturcanu/crmbridge/pkg/metrics"
	"github.com/bturcanu/crmbridge/pkg/types"
)

// handleCalendlyDelivery is POST /calendly-webhook?user_id. A missing
// user_id is stored as a null identity.
func (s *Server) handleCalendlyDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		types.ErrBadRequest("unreadable body").WriteJSON(w)
		return
	}

	d := calendly.Delivery{Body: body, Signature: r.Header.Get(SignatureHeader)}
	if q := r.URL.Query(); q.Has("user_id") {
		d.UserID = types.Ptr(q.Get("user_id"))
	}

	if _, err := s.Receiver.Receive(ctx, d); err != nil {
		switch {
		case errors.Is(err, calendly.ErrInvalidSignature):
			types.ErrUnauthorized("invalid webhook signature").WriteJSON(w)
		case errors.Is(err, calendly.ErrMalformedPayload):
			types.ErrBadRequest("payload must be a JSON object").WriteJSON(w)
		default:
			s.log.ErrorContext(ctx, "delivery store failed", "error", err)
			types.ErrInternal("failed to store event").WriteJSON(w)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleInstantly is POST /instantly-webhook.
func (s *Server) handleInstantly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reply types.EmailReply
	if !s.decode(w, r, &reply) {
		s.Metrics.WebhookDelivery("instantly", "malformed")
		return
	}
	status, err := s.Forwarder.ForwardReply(ctx, reply)
	s.Metrics.WebhookDelivery("instantly", metrics.Outcome(err))
	if err != nil {
		s.log.ErrorContext(ctx, "reply forward failed", "campaign", reply.CampaignName, "caller", auth.CallerFromContext(ctx), "error", err)
		types.ErrUpstream("broker", "message dispatch failed").WriteJSON(w)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": status})
}
