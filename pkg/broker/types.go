// Package broker is a client for the tool-execution broker that links user
// accounts, executes named remote tools and manages MCP tool servers.
package broker

import (
	"encoding/json"
	"errors"
)

// ErrToolFailed is returned when the broker reports an unsuccessful execution.
var ErrToolFailed = errors.New("broker tool execution failed")

// LinkRequest starts an OAuth-style account link for a user.
type LinkRequest struct {
	UserID       string `json:"user_id"`
	AuthConfigID string `json:"auth_config_id"`
	CallbackURL  string `json:"callback_url"`
}

// LinkResponse carries the URL the user must be sent to.
type LinkResponse struct {
	RedirectURL        string `json:"redirect_url"`
	ConnectedAccountID string `json:"connected_account_id,omitempty"`
}

// ExecuteRequest runs the tool Slug on behalf of UserID.
type ExecuteRequest struct {
	Slug      string         `json:"-"`
	UserID    string         `json:"user_id"`
	Version   string         `json:"version,omitempty"`
	Arguments map[string]any `json:"arguments"`
}

// ExecuteResponse is the broker's envelope around a tool result.
type ExecuteResponse struct {
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Successful bool            `json:"successful"`
}

// ToolServer is a broker-managed MCP endpoint aggregating several toolkits.
type ToolServer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	MCPURL string `json:"mcp_url"`
}

// Toolkit binds a toolkit slug to the auth config its users connect through.
type Toolkit struct {
	Toolkit    string `json:"toolkit"`
	AuthConfig string `json:"auth_config"`
}

type listServersResponse struct {
	Items []ToolServer `json:"items"`
}

type createServerRequest struct {
	Name          string   `json:"name"`
	Toolkits      []string `json:"toolkits"`
	AuthConfigIDs []string `json:"auth_config_ids"`
}
