package api

import (
	"errors"
	"net/http"

	"github.com/bturcanu/crmbridge/pkg/auth"
	"github.com/bturcanu/crmbridge/pkg/notify"
	"github.com/bturcanu/crmbridge/pkg/store"
	"github.com/bturcanu/crmbridge/pkg/types"
)

// handleSlackChannels is GET /api/slack_channels?user_id.
func (s *Server) handleSlackChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		types.ErrBadRequest("user_id is required").WriteJSON(w)
		return
	}
	channels, err := s.Channels.List(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "channel list failed", "user_id", userID, "error", err)
		types.ErrUpstream("broker", "channel list failed").WriteJSON(w)
		return
	}
	s.writeJSON(w, r, http.StatusOK, channels)
}

type sendSlackRequest struct {
	Record types.EventRecord `json:"record"`
}

// handleSendSlack is POST /api/send-slack.
func (s *Server) handleSendSlack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req sendSlackRequest
	if !s.decode(w, r, &req) {
		return
	}

	status, err := s.Forwarder.Send(ctx, req.Record)
	if err != nil {
		userID := types.Deref(req.Record.UserID)
		switch {
		case errors.Is(err, notify.ErrMissingUser):
			types.ErrBadRequest("record.user_id is required").WriteJSON(w)
		case errors.Is(err, store.ErrSettingsNotFound):
			types.ErrNotFound("no settings for user").WriteJSON(w)
		case errors.Is(err, store.ErrSettingsAmbiguous):
			types.ErrConflict("multiple settings rows for user").WriteJSON(w)
		case errors.Is(err, notify.ErrSettingsLookup):
			s.log.ErrorContext(ctx, "settings lookup failed", "user_id", userID, "error", err)
			types.ErrInternal("settings lookup failed").WriteJSON(w)
		default:
			s.log.ErrorContext(ctx, "notification dispatch failed", "user_id", userID, "error", err)
			types.ErrUpstream("broker", "message dispatch failed").WriteJSON(w)
		}
		return
	}
	s.log.InfoContext(ctx, "notification sent", "user_id", types.Deref(req.Record.UserID), "caller", auth.CallerFromContext(ctx))
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": status})
}
