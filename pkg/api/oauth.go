package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/bturcanu/crmbridge/pkg/broker"
	"github.com/bturcanu/crmbridge/pkg/types"
)

// handleToolOAuthStart is GET /api/tool_oauth_start?user_id&tool.
// Scheduling links return through the webhook registrar; every other tool
// returns through the generic callback.
func (s *Server) handleToolOAuthStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	tool := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("tool")))
	if userID == "" || tool == "" {
		types.ErrBadRequest("user_id and tool are required").WriteJSON(w)
		return
	}
	authConfig, ok := s.authConfigs[tool]
	if !ok {
		types.ErrBadRequest("unknown tool " + tool).WriteJSON(w)
		return
	}

	var callback string
	if tool == "calendly" {
		callback = s.backendBaseURL + "/api/calendly-webhook?" + url.Values{"user_id": {userID}}.Encode()
	} else {
		callback = s.backendBaseURL + "/api/tool_oauth_callback?" + url.Values{"user_id": {userID}, "tool": {tool}}.Encode()
	}

	link, err := s.Broker.Link(ctx, broker.LinkRequest{
		UserID:       userID,
		AuthConfigID: authConfig,
		CallbackURL:  callback,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "account link failed", "user_id", userID, "tool", tool, "error", err)
		types.ErrUpstream("broker", "account link failed").WriteJSON(w)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"redirect_url": link.RedirectURL})
}

// handleToolOAuthCallback is GET /api/tool_oauth_callback?user_id&tool.
func (s *Server) handleToolOAuthCallback(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	s.log.InfoContext(r.Context(), "tool connected",
		"user_id", userID,
		"tool", r.URL.Query().Get("tool"),
	)
	http.Redirect(w, r, s.frontendRedirect(userID), http.StatusFound)
}

// handleCalendlyRegister is GET /api/calendly-webhook?user_id, the link
// callback for the scheduling account.
func (s *Server) handleCalendlyRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		types.ErrBadRequest("user_id is required").WriteJSON(w)
		return
	}
	if err := s.Registrar.Register(ctx, userID); err != nil {
		s.log.ErrorContext(ctx, "webhook registration failed", "user_id", userID, "error", err)
		types.ErrUpstream("broker", "webhook registration failed").WriteJSON(w)
		return
	}
	http.Redirect(w, r, s.frontendRedirect(userID), http.StatusFound)
}
