// Package assistant forwards user instructions to the LLM provider with the
// shared CRM tool server attached, and shapes the reply for buffered or
// streamed delivery.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bturcanu/crmbridge/pkg/metrics"
	"github.com/bturcanu/crmbridge/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// FallbackText is returned when a reply carries no text block.
	FallbackText = "No text response"

	toolSourceName = "crm"

	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"

	ModeBuffered = "buffered"
	ModeStream   = "stream"
)

var ErrNoInput = errors.New("assistant: no text turns to send")

type completer interface {
	CreateMessage(context.Context, MessageRequest) (*MessageResponse, error)
}

type toolServers interface {
	UserURL(ctx context.Context, userID string) (string, error)
}

// Options configure the completion request.
type Options struct {
	Model        string
	MaxTokens    int
	SystemPrompt string
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// Gateway issues exactly one completion per call.
type Gateway struct {
	llm       completer
	servers   toolServers
	model     string
	maxTokens int
	system    string
	metrics   metrics.Recorder
	log       *slog.Logger
	tracer    trace.Tracer
}

func NewGateway(llm completer, servers toolServers, opts Options) *Gateway {
	g := &Gateway{
		llm:       llm,
		servers:   servers,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		system:    opts.SystemPrompt,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		tracer:    otel.Tracer("github.com/bturcanu/crmbridge/pkg/assistant"),
	}
	if g.metrics == nil {
		g.metrics = metrics.Nop{}
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

// Complete resolves the user's tool server URL and sends turns to the model.
// System turns extend the configured system prompt; turns with any role
// other than user or assistant are dropped.
func (g *Gateway) Complete(ctx context.Context, userID string, turns []types.Turn) (*MessageResponse, error) {
	system, msgs := g.prompt(turns)
	if len(msgs) == 0 {
		return nil, ErrNoInput
	}
	ctx, span := g.tracer.Start(ctx, "assistant.complete", trace.WithAttributes(
		attribute.String("llm.model", g.model),
		attribute.Int("llm.turns", len(msgs)),
	))
	defer span.End()

	mcpURL, err := g.servers.UserURL(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("assistant.Complete tool server: %w", err)
	}

	resp, err := g.llm.CreateMessage(ctx, MessageRequest{
		Model:      g.model,
		MaxTokens:  g.maxTokens,
		System:     system,
		Messages:   msgs,
		MCPServers: []MCPServer{{URL: mcpURL, Name: toolSourceName}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.ErrorContext(ctx, "llm completion failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("assistant.Complete: %w", err)
	}
	span.SetAttributes(attribute.String("llm.stop_reason", resp.StopReason))
	return resp, nil
}

func (g *Gateway) prompt(turns []types.Turn) (string, []Message) {
	system := g.system
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case roleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += t.Content
		case roleUser, roleAssistant:
			msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
		}
	}
	return system, msgs
}

// Ask runs a single-prompt completion and returns the final text.
func (g *Gateway) Ask(ctx context.Context, userID, prompt string) (string, error) {
	var turns []types.Turn
	if prompt != "" {
		turns = []types.Turn{{Role: roleUser, Content: prompt}}
	}
	return g.reply(ctx, ModeBuffered, userID, turns)
}

// Chat runs a multi-turn completion for the streaming endpoint.
func (g *Gateway) Chat(ctx context.Context, userID string, turns []types.Turn) (string, error) {
	return g.reply(ctx, ModeStream, userID, turns)
}

func (g *Gateway) reply(ctx context.Context, mode, userID string, turns []types.Turn) (string, error) {
	start := time.Now()
	resp, err := g.Complete(ctx, userID, turns)
	if errors.Is(err, ErrNoInput) {
		return "", err
	}
	g.metrics.LLMRequest(mode, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return LastText(resp.Content), nil
}

// LastText returns the text of the last text block, skipping trailing tool
// traces.
func LastText(blocks []ContentBlock) string {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Type == "text" {
			return blocks[i].Text
		}
	}
	return FallbackText
}
