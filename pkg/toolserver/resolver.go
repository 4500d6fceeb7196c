// Package toolserver resolves the shared broker tool server that exposes the
// CRM toolkits to the LLM.
package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/bturcanu/crmbridge/pkg/broker"
)

type serverAPI interface {
	ListToolServers(context.Context) ([]broker.ToolServer, error)
	CreateToolServer(context.Context, string, []broker.Toolkit) (*broker.ToolServer, error)
}

// Resolver finds the tool server by name, creating it when absent.
//
// With caching enabled the first successful resolution is kept for the life
// of the process; nothing invalidates it. The mutex is held across the
// remote calls so concurrent first callers issue at most one create.
type Resolver struct {
	api      serverAPI
	name     string
	toolkits []broker.Toolkit
	cache    bool
	log      *slog.Logger

	mu     sync.Mutex
	server *broker.ToolServer
}

// NewResolver creates a resolver for the named server.
func NewResolver(api serverAPI, name string, toolkits []broker.Toolkit, cache bool, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{api: api, name: name, toolkits: toolkits, cache: cache, log: log}
}

// Resolve returns the tool server.
func (r *Resolver) Resolve(ctx context.Context) (*broker.ToolServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache && r.server != nil {
		return r.server, nil
	}

	servers, err := r.api.ListToolServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolserver.Resolve list: %w", err)
	}
	var found *broker.ToolServer
	for i := range servers {
		if servers[i].Name == r.name {
			found = &servers[i]
			break
		}
	}
	if found == nil {
		found, err = r.api.CreateToolServer(ctx, r.name, r.toolkits)
		if err != nil {
			return nil, fmt.Errorf("toolserver.Resolve create: %w", err)
		}
		r.log.InfoContext(ctx, "tool server created", "name", r.name, "id", found.ID)
	}

	if r.cache {
		r.server = found
	}
	return found, nil
}

// UserURL returns the server's MCP URL scoped to userID.
func (r *Resolver) UserURL(ctx context.Context, userID string) (string, error) {
	server, err := r.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return ScopeURL(server.MCPURL, userID)
}

// ScopeURL appends user_id to an MCP URL, keeping any existing query.
func ScopeURL(mcpURL, userID string) (string, error) {
	u, err := url.Parse(mcpURL)
	if err != nil {
		return "", fmt.Errorf("toolserver: invalid mcp_url %q: %w", mcpURL, err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
