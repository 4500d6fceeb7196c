// Package api is the bridge's HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bturcanu/crmbridge/pkg/auth"
	"github.com/bturcanu/crmbridge/pkg/broker"
	"github.com/bturcanu/crmbridge/pkg/calendly"
	"github.com/bturcanu/crmbridge/pkg/metrics"
	"github.com/bturcanu/crmbridge/pkg/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes    = 1 << 20 // 1 MB
	maxRateLimiters = 10_000

	// SignatureHeader carries the scheduling service's delivery signature.
	SignatureHeader = "Calendly-Webhook-Signature"
)

type linker interface {
	Link(context.Context, broker.LinkRequest) (*broker.LinkResponse, error)
}

type registrar interface {
	Register(ctx context.Context, userID string) error
}

type receiver interface {
	Receive(context.Context, calendly.Delivery) (types.EventRecord, error)
}

type forwarder interface {
	Send(context.Context, types.EventRecord) (string, error)
	ForwardReply(context.Context, types.EmailReply) (string, error)
}

type channelLister interface {
	List(ctx context.Context, userID string) ([]types.Channel, error)
}

type assistantGateway interface {
	Ask(ctx context.Context, userID, prompt string) (string, error)
	Chat(ctx context.Context, userID string, turns []types.Turn) (string, error)
}

type toolServers interface {
	Resolve(context.Context) (*broker.ToolServer, error)
}

type settingsStore interface {
	LookupSettings(ctx context.Context, userID string) (*types.UserSettings, error)
	UpsertSettings(ctx context.Context, userID string, upd types.SettingsUpdate) (*types.UserSettings, error)
}

type pinger interface {
	Ping(context.Context) error
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Broker      linker
	Registrar   registrar
	Receiver    receiver
	Forwarder   forwarder
	Channels    channelLister
	Assistant   assistantGateway
	ToolServers toolServers
	Settings    settingsStore
	Store       pinger
	HookKeys    *auth.KeyStore
	Metrics     metrics.Recorder
}

// Options carry the static settings the handlers need.
type Options struct {
	BackendBaseURL string
	FrontendURL    string
	// AuthConfigs maps a lowercase tool name to its broker auth config id.
	AuthConfigs map[string]string
	// RateLimitPerUser is LLM requests per minute per user; 0 disables it.
	RateLimitPerUser int
	// ReplyForwarding mounts the email reply webhook.
	ReplyForwarding bool
	Logger          *slog.Logger
}

// Server holds the handlers. Register mounts them on a router.
type Server struct {
	Deps
	backendBaseURL  string
	frontendURL     string
	authConfigs     map[string]string
	replyForwarding bool
	limiter         *userLimiter
	log             *slog.Logger
}

func NewServer(d Deps, o Options) *Server {
	s := &Server{
		Deps:            d,
		backendBaseURL:  o.BackendBaseURL,
		frontendURL:     o.FrontendURL,
		authConfigs:     o.AuthConfigs,
		replyForwarding: o.ReplyForwarding,
		limiter:         newUserLimiter(o.RateLimitPerUser, maxRateLimiters),
		log:             o.Logger,
	}
	if s.Metrics == nil {
		s.Metrics = metrics.Nop{}
	}
	if s.HookKeys == nil {
		s.HookKeys = auth.NewKeyStore("")
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Register mounts every route on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Get("/api/tool_oauth_start", s.handleToolOAuthStart)
	r.Get("/api/tool_oauth_callback", s.handleToolOAuthCallback)
	r.Get("/api/calendly-webhook", s.handleCalendlyRegister)
	r.Post(calendly.CallbackPath, s.handleCalendlyDelivery)

	r.Get("/api/slack_channels", s.handleSlackChannels)
	r.With(auth.RequireKey(s.HookKeys)).Post("/api/send-slack", s.handleSendSlack)
	if s.Settings != nil {
		guarded := r.With(auth.RequireKey(s.HookKeys))
		guarded.Get("/api/settings", s.handleGetSettings)
		guarded.Put("/api/settings", s.handlePutSettings)
	}

	r.Post("/api/ai-action", s.handleAIAction)
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/mcp-info", s.handleMCPInfo)

	if s.replyForwarding {
		r.With(auth.RequireKey(s.HookKeys)).Post("/instantly-webhook", s.handleInstantly)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		if err := s.Store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.ErrorContext(r.Context(), "response encode failed", "error", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		types.ErrBadRequest("invalid JSON body").WriteJSON(w)
		return false
	}
	return true
}

// frontendRedirect is the post-link landing page for userID.
func (s *Server) frontendRedirect(userID string) string {
	u, err := url.Parse(s.frontendURL)
	if err != nil {
		return s.frontendURL + "?" + url.Values{"user_id": {userID}}.Encode()
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String()
}
