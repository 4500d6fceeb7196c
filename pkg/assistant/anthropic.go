package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	mcpBeta        = "mcp-client-2025-04-04"
	requestTimeout = 120 * time.Second
)

// MessageRequest is the subset of the Messages API the gateway uses.
type MessageRequest struct {
	Model      string
	MaxTokens  int
	System     string
	Messages   []Message
	MCPServers []MCPServer
}

// Message is one conversation turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// MCPServer attaches a remote tool source, reached by URL, to a request.
type MCPServer struct {
	URL  string
	Name string
}

// ContentBlock is one block of a reply. Only text blocks carry Text; tool
// traces such as mcp_tool_use keep their Name.
type ContentBlock struct {
	Type string
	Text string
	Name string
}

// MessageResponse is a complete, non-streamed reply.
type MessageResponse struct {
	ID         string
	Model      string
	StopReason string
	Content    []ContentBlock
}

// ProviderError is a non-2xx reply from the provider.
type ProviderError struct {
	Status  int
	Type    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider returned %d (%s): %s", e.Status, e.Type, e.Message)
}

// Client sends Messages requests through the provider SDK with the MCP
// connector beta enabled.
type Client struct {
	sdk anthropic.Client
}

// NewClient builds a client for baseURL. Extra options are applied last.
func NewClient(baseURL, apiKey string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(requestTimeout),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &Client{sdk: anthropic.NewClient(append(base, opts...)...)}
}

// CreateMessage issues one completion request and waits for the full reply.
func (c *Client) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.sdk.Beta.Messages.New(ctx, betaParams(req))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, providerError(apiErr.StatusCode, apiErr.RawJSON())
		}
		return nil, fmt.Errorf("llm request: %w", err)
	}

	out := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    make([]ContentBlock, 0, len(msg.Content)),
	}
	for _, b := range msg.Content {
		out.Content = append(out.Content, ContentBlock{Type: b.Type, Text: b.Text, Name: b.Name})
	}
	return out, nil
}

func betaParams(req MessageRequest) anthropic.BetaMessageNewParams {
	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  make([]anthropic.BetaMessageParam, 0, len(req.Messages)),
		Betas:     []anthropic.AnthropicBeta{anthropic.AnthropicBeta(mcpBeta)},
	}
	if req.System != "" {
		params.System = []anthropic.BetaTextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, anthropic.BetaMessageParam{
			Role:    anthropic.BetaMessageParamRole(m.Role),
			Content: []anthropic.BetaContentBlockParamUnion{anthropic.NewBetaTextBlock(m.Content)},
		})
	}
	for _, s := range req.MCPServers {
		params.MCPServers = append(params.MCPServers, anthropic.BetaRequestMCPServerURLDefinitionParam{
			Name: s.Name,
			URL:  s.URL,
		})
	}
	return params
}

func providerError(status int, raw string) *ProviderError {
	var env struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Error.Message == "" {
		return &ProviderError{Status: status, Type: "unknown", Message: strings.TrimSpace(raw)}
	}
	return &ProviderError{Status: status, Type: env.Error.Type, Message: env.Error.Message}
}
