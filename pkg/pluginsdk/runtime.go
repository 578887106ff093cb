package pluginsdk

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool exposed by a runtime plugin.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage

	// Capabilities lists the capability tags this tool requires (fs, shell, net, ...).
	Capabilities []string

	// IsMutating indicates the tool has side effects outside the conversation.
	IsMutating bool

	// RiskLevel is a 0-10 guardrail hint consumed by the approval gate.
	RiskLevel int
}

// ToolResult contains the output from a plugin tool execution.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolHandler executes a plugin tool with JSON arguments.
type ToolHandler func(ctx context.Context, params json.RawMessage) (*ToolResult, error)

// ChannelRegistry allows plugins to register channel adapters.
type ChannelRegistry interface {
	RegisterChannel(adapter ChannelAdapter) error
}

// ToolRegistry allows plugins to register tools.
type ToolRegistry interface {
	RegisterTool(def ToolDefinition, handler ToolHandler) error
}

// PluginLogger provides logging for plugins.
type PluginLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PluginAPI provides access to the registration surfaces a plugin may use.
type PluginAPI struct {
	// Channels for registering channel adapters.
	Channels ChannelRegistry

	// Tools for registering agent tools.
	Tools ToolRegistry

	// Config contains the plugin's configuration entry.
	Config map[string]any

	// Logger provides a scoped logger for the plugin.
	Logger PluginLogger

	// ResolvePath resolves a path relative to the workspace.
	ResolvePath func(path string) string
}

// RuntimePlugin is the interface runtime plugins must implement.
type RuntimePlugin interface {
	Manifest() *Manifest
	RegisterChannels(registry ChannelRegistry, cfg map[string]any) error
	RegisterTools(registry ToolRegistry, cfg map[string]any) error
}

// FullPlugin registers through a single API call rather than per-surface
// methods. This is the recommended interface for new plugins.
type FullPlugin interface {
	Manifest() *Manifest

	// Register is called with the full plugin API. Plugins should
	// register all their components here.
	Register(api *PluginAPI) error
}

// ToolCall is the plugin-facing view of an agent tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// PluginHost is the narrow interface the tool dispatcher depends on for
// plugin-exported tools. The dispatcher never sees plugin internals: it
// checks HasTool, then calls Execute and folds the ToolResult back into
// the turn the same way as any built-in or device tool.
type PluginHost interface {
	HasTool(name string) bool
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
	ToolDefinitions() []ToolDefinition
}
