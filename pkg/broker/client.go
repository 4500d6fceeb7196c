package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bturcanu/crmbridge/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 4 << 20

// Metric labels for calls that are not tool executions.
const (
	callLink         = "link"
	callListServers  = "list_tool_servers"
	callCreateServer = "create_tool_server"
)

// Client calls the broker REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    metrics.Recorder
	tracer     trace.Tracer
}

// NewClient creates a broker client. A nil recorder disables metrics.
func NewClient(baseURL, apiKey string, rec metrics.Recorder) *Client {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		metrics: rec,
		tracer:  otel.Tracer("github.com/bturcanu/crmbridge/pkg/broker"),
	}
}

// Link starts an account link and returns the redirect target.
func (c *Client) Link(ctx context.Context, req LinkRequest) (*LinkResponse, error) {
	ctx, span := c.tracer.Start(ctx, "broker.link", trace.WithAttributes(
		attribute.String("broker.auth_config", req.AuthConfigID),
	))
	defer span.End()

	var resp LinkResponse
	err := c.do(ctx, http.MethodPost, "/api/v3/connected_accounts/link", req, &resp)
	if err == nil && resp.RedirectURL == "" {
		err = errors.New("empty redirect_url")
	}
	c.metrics.BrokerCall(callLink, metrics.Outcome(err))
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("broker.Link: %w", err)
	}
	return &resp, nil
}

// Execute runs a tool. A response with successful=false is an error
// wrapping ErrToolFailed.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	ctx, span := c.tracer.Start(ctx, "broker.execute", trace.WithAttributes(
		attribute.String("broker.tool", req.Slug),
		attribute.String("broker.version", req.Version),
	))
	defer span.End()

	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}
	var resp ExecuteResponse
	err := c.do(ctx, http.MethodPost, "/api/v3/tools/execute/"+url.PathEscape(req.Slug), req, &resp)
	if err == nil && !resp.Successful {
		err = fmt.Errorf("%w: %s", ErrToolFailed, resp.Error)
	}
	c.metrics.BrokerCall(req.Slug, metrics.Outcome(err))
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("broker.Execute %s: %w", req.Slug, err)
	}
	return &resp, nil
}

// ListToolServers returns every tool server owned by the API key.
func (c *Client) ListToolServers(ctx context.Context) ([]ToolServer, error) {
	ctx, span := c.tracer.Start(ctx, "broker.list_tool_servers")
	defer span.End()

	var resp listServersResponse
	err := c.do(ctx, http.MethodGet, "/api/v3/mcp/servers", nil, &resp)
	c.metrics.BrokerCall(callListServers, metrics.Outcome(err))
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("broker.ListToolServers: %w", err)
	}
	return resp.Items, nil
}

// CreateToolServer creates a named tool server exposing toolkits.
func (c *Client) CreateToolServer(ctx context.Context, name string, toolkits []Toolkit) (*ToolServer, error) {
	ctx, span := c.tracer.Start(ctx, "broker.create_tool_server", trace.WithAttributes(
		attribute.String("broker.server_name", name),
	))
	defer span.End()

	body := createServerRequest{
		Name:          name,
		Toolkits:      make([]string, 0, len(toolkits)),
		AuthConfigIDs: make([]string, 0, len(toolkits)),
	}
	for _, tk := range toolkits {
		body.Toolkits = append(body.Toolkits, tk.Toolkit)
		body.AuthConfigIDs = append(body.AuthConfigIDs, tk.AuthConfig)
	}
	var server ToolServer
	err := c.do(ctx, http.MethodPost, "/api/v3/mcp/servers/custom", body, &server)
	if err == nil && server.MCPURL == "" {
		err = errors.New("empty mcp_url")
	}
	c.metrics.BrokerCall(callCreateServer, metrics.Outcome(err))
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("broker.CreateToolServer: %w", err)
	}
	return &server, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("broker returned %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
