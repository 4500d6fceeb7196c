package config

import (
	"os"
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("COMPOSIO_API_KEY", "ck")
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("BACKEND_BASE_URL", "https://bridge.example.com/")
	t.Setenv("TOOL_SERVER_TOOLKITS", "")
	for _, k := range []string{"CALENDLY", "SLACK", "ATTIO", "HUBSPOT", "NOTION"} {
		t.Setenv(k+"_AUTH_CONFIG_ID", "ac_"+strings.ToLower(k))
	}
	t.Setenv("ARCHIVE_S3_ENDPOINT", "")
	t.Setenv("ANTHROPIC_MAX_TOKENS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
}

func TestLoad_OK(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackendBaseURL != "https://bridge.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BackendBaseURL)
	}
	if got, _ := cfg.AuthConfigFor("Attio"); got != "ac_attio" {
		t.Errorf("expected ac_attio, got %q", got)
	}
	if len(cfg.ToolServerToolkits) != 3 {
		t.Errorf("expected default toolkits, got %v", cfg.ToolServerToolkits)
	}
	if cfg.Model != DefaultModel || cfg.MaxTokens != 4096 {
		t.Errorf("unexpected LLM defaults: %q %d", cfg.Model, cfg.MaxTokens)
	}
	if !cfg.ToolServerCache {
		t.Error("expected tool server cache enabled by default")
	}
	if cfg.InstantlyEnabled() {
		t.Error("expected instantly forwarding disabled without routing")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("expected wildcard CORS by default, got %v", cfg.CORSOrigins)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"https://app.example.com", "http://localhost:3000"}
	if strings.Join(cfg.CORSOrigins, " ") != strings.Join(want, " ") {
		t.Errorf("expected %v, got %v", want, cfg.CORSOrigins)
	}
}

func TestLoad_ReportsAllMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("COMPOSIO_API_KEY", "")
	t.Setenv("SLACK_AUTH_CONFIG_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"COMPOSIO_API_KEY", "SLACK_AUTH_CONFIG_ID"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in error, got %v", key, err)
		}
	}
}

func TestLoad_CustomToolkitsRequireAuthConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("TOOL_SERVER_TOOLKITS", "attio, Linear")
	t.Setenv("LINEAR_AUTH_CONFIG_ID", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "LINEAR_AUTH_CONFIG_ID") {
		t.Fatalf("expected missing LINEAR_AUTH_CONFIG_ID, got %v", err)
	}
}

func TestLoad_ArchiveNeedsCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("ARCHIVE_S3_ENDPOINT", "localhost:9000")
	t.Setenv("ARCHIVE_S3_ACCESS_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for archive without credentials")
	}
}

func TestEnvOrBool(t *testing.T) {
	t.Setenv("X_FLAG", "true")
	if !EnvOrBool("X_FLAG", false) {
		t.Error("expected true")
	}
	t.Setenv("X_FLAG", "nope")
	if EnvOrBool("X_FLAG", false) {
		t.Error("expected fallback on invalid value")
	}
}

func TestLoad_LeavesEnvironmentUntouched(t *testing.T) {
	setRequired(t)
	t.Setenv("COMPOSIO_CACHE_DIR", "")
	_ = os.Unsetenv("COMPOSIO_CACHE_DIR")

	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := os.LookupEnv("COMPOSIO_CACHE_DIR"); ok {
		t.Errorf("expected COMPOSIO_CACHE_DIR unset, got %q", v)
	}
}
