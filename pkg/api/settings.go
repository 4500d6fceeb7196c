package api

import (
	"errors"
	"net/http"

	"github.com/bturcanu/crmbridge/pkg/auth"
	"github.com/bturcanu/crmbridge/pkg/store"
	"github.com/bturcanu/crmbridge/pkg/types"
)

// handleGetSettings is GET /api/settings?user_id.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		types.ErrBadRequest("user_id is required").WriteJSON(w)
		return
	}
	settings, err := s.Settings.LookupSettings(ctx, userID)
	if err != nil {
		s.settingsError(w, r, userID, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, settings)
}

// handlePutSettings is PUT /api/settings?user_id. It creates the row on
// first use; omitted fields keep their stored value.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		types.ErrBadRequest("user_id is required").WriteJSON(w)
		return
	}
	var upd types.SettingsUpdate
	if !s.decode(w, r, &upd) {
		return
	}
	settings, err := s.Settings.UpsertSettings(ctx, userID, upd)
	if err != nil {
		s.settingsError(w, r, userID, err)
		return
	}
	s.log.InfoContext(ctx, "settings saved", "user_id", userID, "caller", auth.CallerFromContext(ctx))
	s.writeJSON(w, r, http.StatusOK, settings)
}

func (s *Server) settingsError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	switch {
	case errors.Is(err, store.ErrSettingsNotFound):
		types.ErrNotFound("no settings for user").WriteJSON(w)
	case errors.Is(err, store.ErrSettingsAmbiguous):
		types.ErrConflict("multiple settings rows for user").WriteJSON(w)
	default:
		s.log.ErrorContext(r.Context(), "settings store failed", "user_id", userID, "error", err)
		types.ErrInternal("settings store failed").WriteJSON(w)
	}
}
