// Package plugins loads and registers in-process plugins: agent tools and
// channel adapters contributed by code outside the core tree. A loaded
// plugin is exposed to the rest of the runtime only through the narrow
// pluginsdk.PluginHost interface, so the tool dispatcher never depends on
// plugin internals.
package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomrun/loom/pkg/pluginsdk"
)

// PluginStatus indicates the current state of a plugin.
type PluginStatus string

const (
	PluginStatusLoaded   PluginStatus = "loaded"
	PluginStatusDisabled PluginStatus = "disabled"
	PluginStatusError    PluginStatus = "error"
)

// PluginRecord contains metadata about a registered plugin.
type PluginRecord struct {
	ID          string
	Name        string
	Description string
	Version     string
	Source      string
	Status      PluginStatus
	Error       string
	Enabled     bool

	Tools           []string
	Channels        []string
	HasConfigSchema bool
}

// PluginConfig configures plugin loading.
type PluginConfig struct {
	// Enabled controls whether plugins are loaded at all.
	Enabled bool

	// Allow is an allowlist of plugin IDs. Empty means all allowed.
	Allow []string

	// Deny is a denylist of plugin IDs.
	Deny []string

	// Paths is a list of directories to search for plugins.
	Paths []string

	// Entries contains per-plugin configuration.
	Entries map[string]PluginEntryConfig
}

// PluginEntryConfig contains per-plugin configuration.
type PluginEntryConfig struct {
	Enabled *bool
	Config  map[string]any
}

// DiagnosticLevel indicates severity of a diagnostic message.
type DiagnosticLevel string

const (
	DiagnosticInfo  DiagnosticLevel = "info"
	DiagnosticWarn  DiagnosticLevel = "warn"
	DiagnosticError DiagnosticLevel = "error"
)

// Diagnostic represents a message about plugin loading.
type Diagnostic struct {
	Level    DiagnosticLevel
	PluginID string
	Source   string
	Message  string
}

// PluginAPI provides capabilities to plugins during registration.
type PluginAPI struct {
	record   *PluginRecord
	registry *Registry

	// AppConfig is the application configuration.
	AppConfig map[string]any

	// PluginConfig is the plugin-specific configuration.
	PluginConfig map[string]any
}

type registeredTool struct {
	def     pluginsdk.ToolDefinition
	handler pluginsdk.ToolHandler
}

// RegisterTool registers a tool provided by this plugin.
func (api *PluginAPI) RegisterTool(def pluginsdk.ToolDefinition, handler pluginsdk.ToolHandler) {
	api.record.Tools = append(api.record.Tools, def.Name)
	api.registry.tools[def.Name] = registeredTool{def: def, handler: handler}
}

// RegisterChannel registers a channel adapter provided by this plugin.
func (api *PluginAPI) RegisterChannel(adapter pluginsdk.ChannelAdapter) {
	id := string(adapter.Type())
	api.record.Channels = append(api.record.Channels, id)
	api.registry.channels[id] = adapter
}

// Logger returns a logger for this plugin.
func (api *PluginAPI) Logger() Logger {
	return api.registry.logger
}

// Logger is a minimal logging interface.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RegisterFunc is the function signature for plugin registration.
type RegisterFunc func(api *PluginAPI) error

// PluginDefinition defines a plugin's metadata and registration.
type PluginDefinition struct {
	ID           string
	Name         string
	Description  string
	Version      string
	ConfigSchema any // Optional schema for validation
	Register     RegisterFunc
}

// Registry loads plugin definitions and holds the tools and channels they
// contribute. It implements pluginsdk.PluginHost so the tool dispatcher can
// treat it as just another tool source.
type Registry struct {
	mu          sync.RWMutex
	plugins     []*PluginRecord
	definitions map[string]*PluginDefinition
	diagnostics []Diagnostic
	logger      Logger

	tools    map[string]registeredTool
	channels map[string]pluginsdk.ChannelAdapter
}

// NewRegistry creates a new plugin registry.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = &noopLogger{}
	}

	return &Registry{
		plugins:     make([]*PluginRecord, 0),
		definitions: make(map[string]*PluginDefinition),
		diagnostics: make([]Diagnostic, 0),
		logger:      logger,
		tools:       make(map[string]registeredTool),
		channels:    make(map[string]pluginsdk.ChannelAdapter),
	}
}

// Register registers a plugin definition.
func (r *Registry) Register(def *PluginDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.ID == "" {
		return fmt.Errorf("plugin ID is required")
	}

	if _, exists := r.definitions[def.ID]; exists {
		return fmt.Errorf("plugin %s already registered", def.ID)
	}

	r.definitions[def.ID] = def
	return nil
}

// Load loads all registered plugins with the given configuration.
func (r *Registry) Load(ctx context.Context, config *PluginConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if config == nil {
		config = &PluginConfig{Enabled: true}
	}

	if !config.Enabled {
		r.diagnostics = append(r.diagnostics, Diagnostic{
			Level:   DiagnosticInfo,
			Message: "plugins disabled",
		})
		return nil
	}

	for id, def := range r.definitions {
		record := &PluginRecord{
			ID:          id,
			Name:        def.Name,
			Description: def.Description,
			Version:     def.Version,
			Source:      "builtin",
		}

		enableState := r.resolveEnableState(id, config)
		if !enableState.enabled {
			record.Status = PluginStatusDisabled
			record.Error = enableState.reason
			record.Enabled = false
			r.plugins = append(r.plugins, record)
			continue
		}

		record.Enabled = true

		var pluginConfig map[string]any
		if entry, ok := config.Entries[id]; ok {
			pluginConfig = entry.Config
		}

		api := &PluginAPI{
			record:       record,
			registry:     r,
			PluginConfig: pluginConfig,
		}

		if def.Register != nil {
			if err := def.Register(api); err != nil {
				record.Status = PluginStatusError
				record.Error = err.Error()
				r.diagnostics = append(r.diagnostics, Diagnostic{
					Level:    DiagnosticError,
					PluginID: id,
					Message:  fmt.Sprintf("failed to register: %v", err),
				})
				r.plugins = append(r.plugins, record)
				continue
			}
		}

		record.Status = PluginStatusLoaded
		record.HasConfigSchema = def.ConfigSchema != nil
		r.plugins = append(r.plugins, record)

		r.logger.Info("plugin loaded", "id", id, "name", def.Name)
	}

	return nil
}

type enableState struct {
	enabled bool
	reason  string
}

func (r *Registry) resolveEnableState(id string, config *PluginConfig) enableState {
	if !config.Enabled {
		return enableState{false, "plugins disabled"}
	}

	for _, denied := range config.Deny {
		if denied == id {
			return enableState{false, "blocked by denylist"}
		}
	}

	if len(config.Allow) > 0 {
		found := false
		for _, allowed := range config.Allow {
			if allowed == id {
				found = true
				break
			}
		}
		if !found {
			return enableState{false, "not in allowlist"}
		}
	}

	if entry, ok := config.Entries[id]; ok {
		if entry.Enabled != nil && !*entry.Enabled {
			return enableState{false, "disabled in config"}
		}
	}

	return enableState{true, ""}
}

// Plugins returns all plugin records.
func (r *Registry) Plugins() []*PluginRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*PluginRecord, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Plugin returns a plugin record by ID.
func (r *Registry) Plugin(id string) (*PluginRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Diagnostics returns all diagnostic messages.
func (r *Registry) Diagnostics() []Diagnostic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Diagnostic, len(r.diagnostics))
	copy(result, r.diagnostics)
	return result
}

// Channel returns a registered channel adapter by channel type.
func (r *Registry) Channel(id string) (pluginsdk.ChannelAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	return c, ok
}

// ChannelIDs returns all registered channel type identifiers.
func (r *Registry) ChannelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}

// HasTool implements pluginsdk.PluginHost.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute implements pluginsdk.PluginHost. It dispatches to the handler a
// plugin registered under call.Name; the dispatcher never sees the plugin
// that owns it.
func (r *Registry) Execute(ctx context.Context, call pluginsdk.ToolCall) (*pluginsdk.ToolResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin tool %q not registered", call.Name)
	}
	return tool.handler(ctx, call.Input)
}

// ToolDefinitions implements pluginsdk.PluginHost.
func (r *Registry) ToolDefinitions() []pluginsdk.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]pluginsdk.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.def)
	}
	return defs
}

var _ pluginsdk.PluginHost = (*Registry)(nil)

type noopLogger struct{}

func (l *noopLogger) Info(_ string, _ ...any)  {}
func (l *noopLogger) Warn(_ string, _ ...any)  {}
func (l *noopLogger) Error(_ string, _ ...any) {}

// DefaultRegistry is the global plugin registry.
var DefaultRegistry = NewRegistry(nil)

// RegisterPlugin registers a plugin with the default registry.
func RegisterPlugin(def *PluginDefinition) error {
	return DefaultRegistry.Register(def)
}

// LoadPlugins loads all plugins with the default registry.
func LoadPlugins(ctx context.Context, config *PluginConfig) error {
	return DefaultRegistry.Load(ctx, config)
}
