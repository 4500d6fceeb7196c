package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Defaults that mirror the hosted deployment.
const (
	DefaultComposioBaseURL  = "https://backend.composio.dev"
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultModel            = "claude-sonnet-4-5"
	DefaultToolServerName   = "crm-mcps"
	DefaultSystemPrompt     = "You are a helpful assistant with access to Attio, HubSpot, and Notion. Use the tools without asking for confirmation."
)

// Config is read once at startup and treated as immutable afterwards.
type Config struct {
	Addr        string
	MetricsAddr string

	// Public URLs
	BackendBaseURL string
	FrontendURL    string
	CORSOrigins    []string

	// Broker
	ComposioAPIKey  string
	ComposioBaseURL string
	// AuthConfigs maps a lowercase tool name to its broker auth config id.
	AuthConfigs map[string]string

	// Tool server
	ToolServerName     string
	ToolServerToolkits []string
	ToolServerCache    bool

	// LLM
	AnthropicAPIKey  string
	AnthropicBaseURL string
	Model            string
	MaxTokens        int
	SystemPrompt     string
	RateLimitPerUser int

	// Persistence
	DatabaseURL string
	AutoMigrate bool

	// Webhooks
	CalendlySigningKey string
	NotifyOnDelivery   bool
	InternalAPIKeys    string

	// Instantly reply forwarding; the route is disabled unless both are set.
	InstantlySlackUserID    string
	InstantlySlackChannelID string

	// Raw delivery archive; disabled when ArchiveEndpoint is empty.
	ArchiveEndpoint  string
	ArchiveBucket    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveSecure    bool

	// Telemetry
	OTLPEndpoint string
	ServiceName  string
}

// LinkableTools returns every tool a user can link through the broker.
func (c *Config) LinkableTools() []string {
	tools := []string{"calendly", "slack"}
	return append(tools, c.ToolServerToolkits...)
}

// AuthConfigFor returns the auth config id registered for tool.
func (c *Config) AuthConfigFor(tool string) (string, bool) {
	id, ok := c.AuthConfigs[strings.ToLower(strings.TrimSpace(tool))]
	return id, ok
}

// InstantlyEnabled reports whether reply forwarding has a destination.
func (c *Config) InstantlyEnabled() bool {
	return c.InstantlySlackUserID != "" && c.InstantlySlackChannelID != ""
}

// Load reads the configuration from the environment. Every missing
// required variable is reported in a single error.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:             EnvOr("BRIDGE_ADDR", ":8080"),
		MetricsAddr:      EnvOr("METRICS_ADDR", "127.0.0.1:9090"),
		FrontendURL:      EnvOr("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigins:      splitOrigins(EnvOr("CORS_ALLOWED_ORIGINS", "*")),
		ComposioBaseURL:  EnvOr("COMPOSIO_BASE_URL", DefaultComposioBaseURL),
		AuthConfigs:      map[string]string{},
		ToolServerName:   EnvOr("TOOL_SERVER_NAME", DefaultToolServerName),
		ToolServerCache:  EnvOrBool("TOOL_SERVER_CACHE", true),
		AnthropicBaseURL: EnvOr("ANTHROPIC_BASE_URL", DefaultAnthropicBaseURL),
		Model:            EnvOr("ANTHROPIC_MODEL", DefaultModel),
		MaxTokens:        EnvOrInt("ANTHROPIC_MAX_TOKENS", 4096),
		SystemPrompt:     EnvOr("ASSISTANT_SYSTEM_PROMPT", DefaultSystemPrompt),
		RateLimitPerUser: EnvOrInt("RATE_LIMIT_PER_USER", 20),
		AutoMigrate:      EnvOrBool("DB_AUTO_MIGRATE", false),

		CalendlySigningKey: os.Getenv("CALENDLY_WEBHOOK_SIGNING_KEY"),
		NotifyOnDelivery:   EnvOrBool("NOTIFY_ON_DELIVERY", false),
		InternalAPIKeys:    os.Getenv("INTERNAL_API_KEYS"),

		InstantlySlackUserID:    os.Getenv("INSTANTLY_SLACK_USER_ID"),
		InstantlySlackChannelID: os.Getenv("INSTANTLY_SLACK_CHANNEL_ID"),

		ArchiveEndpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
		ArchiveBucket:    EnvOr("ARCHIVE_S3_BUCKET", "crmbridge-deliveries"),
		ArchiveAccessKey: os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		ArchiveSecure:    EnvOrBool("ARCHIVE_S3_SECURE", true),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  EnvOr("OTEL_SERVICE_NAME", "crmbridge"),
	}

	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.ComposioAPIKey = required("COMPOSIO_API_KEY")
	cfg.AnthropicAPIKey = required("ANTHROPIC_API_KEY")
	cfg.BackendBaseURL = strings.TrimRight(required("BACKEND_BASE_URL"), "/")

	cfg.ToolServerToolkits = splitList(EnvOr("TOOL_SERVER_TOOLKITS", "attio,hubspot,notion"))
	for _, tool := range cfg.LinkableTools() {
		key := strings.ToUpper(tool) + "_AUTH_CONFIG_ID"
		if id := required(key); id != "" {
			cfg.AuthConfigs[tool] = id
		}
	}

	cfg.DatabaseURL = EnvOr("DATABASE_URL", buildPostgresDSN())

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if _, err := url.ParseRequestURI(cfg.BackendBaseURL); err != nil {
		return nil, fmt.Errorf("BACKEND_BASE_URL is not a valid URL: %w", err)
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("ANTHROPIC_MAX_TOKENS must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.ArchiveEndpoint != "" && (cfg.ArchiveAccessKey == "" || cfg.ArchiveSecretKey == "") {
		return nil, fmt.Errorf("ARCHIVE_S3_ACCESS_KEY and ARCHIVE_S3_SECRET_KEY are required when ARCHIVE_S3_ENDPOINT is set")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func buildPostgresDSN() string {
	sslmode := EnvOr("POSTGRES_SSLMODE", "disable")
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(EnvOr("POSTGRES_USER", "crmbridge"), EnvOr("POSTGRES_PASSWORD", "changeme")),
		Host:     net.JoinHostPort(EnvOr("POSTGRES_HOST", "localhost"), EnvOr("POSTGRES_PORT", "5432")),
		Path:     EnvOr("POSTGRES_DB", "crmbridge"),
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}
