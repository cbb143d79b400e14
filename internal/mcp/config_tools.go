package mcp

import (
	"context"
	"errors"
	"sort"

	"github.com/openclaw/mcp-browser-server/internal/configstore"
)

// The agent configuration document groups related settings under fixed
// top-level sections; the section helpers below address into them.
const (
	sectionMCPServers = "mcp_servers"
	sectionChannels   = "channels"
	sectionProviders  = "providers"
)

// mappingKeys returns the sorted keys of a section value, or nil when the
// section is absent or not a mapping.
func mappingKeys(store *configstore.Store, section string) ([]string, error) {
	val, err := store.Get(section)
	if err != nil {
		if errors.Is(err, configstore.ErrPathNotFound) {
			return nil, nil
		}
		return nil, err
	}
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// objectArg extracts a JSON-object argument.
func objectArg(args map[string]interface{}, key string) (map[string]interface{}, bool) {
	val, ok := args[key]
	if !ok {
		return nil, false
	}
	m, ok := val.(map[string]interface{})
	return m, ok
}

// =============================================================================
// SECTIONS & VALUES
// =============================================================================

// ListSectionsTool lists the document's top-level sections.
type ListSectionsTool struct {
	store *configstore.Store
}

func (t *ListSectionsTool) Name() string { return "list_sections" }
func (t *ListSectionsTool) Description() string {
	return "List the top-level sections of the agent configuration."
}
func (t *ListSectionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSectionsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"success":  true,
		"sections": t.store.Sections(),
	}, nil
}

// GetSectionTool returns one top-level section.
type GetSectionTool struct {
	store *configstore.Store
}

func (t *GetSectionTool) Name() string { return "get_section" }
func (t *GetSectionTool) Description() string {
	return "Get a top-level section of the agent configuration."
}
func (t *GetSectionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"section": map[string]interface{}{
				"type":        "string",
				"description": "Section name",
			},
		},
		"required": []string{"section"},
	}
}
func (t *GetSectionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	section := getStringArg(args, "section")
	if section == "" {
		return failure("section is required"), nil
	}

	val, err := t.store.Get(section)
	if err != nil {
		return failure("get section %s: %v", section, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"section": section,
		"data":    val,
	}, nil
}

// SetSectionTool replaces one top-level section.
type SetSectionTool struct {
	store *configstore.Store
}

func (t *SetSectionTool) Name() string { return "set_section" }
func (t *SetSectionTool) Description() string {
	return "Replace a top-level section of the agent configuration with the given object."
}
func (t *SetSectionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"section": map[string]interface{}{
				"type":        "string",
				"description": "Section name",
			},
			"data": map[string]interface{}{
				"type":        "object",
				"description": "New section contents",
			},
		},
		"required": []string{"section", "data"},
	}
}
func (t *SetSectionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	section := getStringArg(args, "section")
	if section == "" {
		return failure("section is required"), nil
	}
	data, ok := objectArg(args, "data")
	if !ok {
		return failure("data must be an object"), nil
	}

	if err := t.store.Set(section, data); err != nil {
		return failure("set section %s: %v", section, err), nil
	}
	return map[string]interface{}{"success": true, "section": section}, nil
}

// GetValueTool reads a value at a dotted path.
type GetValueTool struct {
	store *configstore.Store
}

func (t *GetValueTool) Name() string { return "get_value" }
func (t *GetValueTool) Description() string {
	return "Get a configuration value at a dotted path, e.g. channels.telegram.enabled."
}
func (t *GetValueTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Dotted path to the value",
			},
		},
		"required": []string{"path"},
	}
}
func (t *GetValueTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path := getStringArg(args, "path")
	if path == "" {
		return failure("path is required"), nil
	}

	val, err := t.store.Get(path)
	if err != nil {
		return failure("get %s: %v", path, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"path":    path,
		"value":   val,
	}, nil
}

// SetValueTool writes a value at a dotted path.
type SetValueTool struct {
	store *configstore.Store
}

func (t *SetValueTool) Name() string { return "set_value" }
func (t *SetValueTool) Description() string {
	return "Set a configuration value at a dotted path, creating intermediate sections as needed."
}
func (t *SetValueTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Dotted path to the value",
			},
			"value": map[string]interface{}{
				"description": "New value (any JSON type)",
			},
		},
		"required": []string{"path", "value"},
	}
}
func (t *SetValueTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path := getStringArg(args, "path")
	if path == "" {
		return failure("path is required"), nil
	}
	value, ok := args["value"]
	if !ok {
		return failure("value is required"), nil
	}

	if err := t.store.Set(path, value); err != nil {
		return failure("set %s: %v", path, err), nil
	}
	return map[string]interface{}{"success": true, "path": path}, nil
}

// =============================================================================
// SECRETS
// =============================================================================

// GetSecretTool reads and decrypts a secret value.
type GetSecretTool struct {
	store   *configstore.Store
	secrets *configstore.SecretStore
}

func (t *GetSecretTool) Name() string { return "get_secret" }
func (t *GetSecretTool) Description() string {
	return "Get a secret configuration value at a dotted path, decrypting it if stored encrypted."
}
func (t *GetSecretTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Dotted path to the secret",
			},
		},
		"required": []string{"path"},
	}
}
func (t *GetSecretTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path := getStringArg(args, "path")
	if path == "" {
		return failure("path is required"), nil
	}

	val, err := t.store.Get(path)
	if err != nil {
		return failure("get secret %s: %v", path, err), nil
	}
	stored, ok := val.(string)
	if !ok {
		return failure("secret %s is not a string", path), nil
	}

	plain, err := t.secrets.Decrypt(stored)
	if err != nil {
		return failure("decrypt secret %s: %v", path, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"path":    path,
		"value":   plain,
	}, nil
}

// SetSecretTool encrypts and stores a secret value.
type SetSecretTool struct {
	store   *configstore.Store
	secrets *configstore.SecretStore
}

func (t *SetSecretTool) Name() string { return "set_secret" }
func (t *SetSecretTool) Description() string {
	return "Store a secret configuration value at a dotted path, encrypted at rest when encryption is enabled."
}
func (t *SetSecretTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Dotted path to the secret",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Plaintext secret value",
			},
		},
		"required": []string{"path", "value"},
	}
}
func (t *SetSecretTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path := getStringArg(args, "path")
	if path == "" {
		return failure("path is required"), nil
	}
	value := getStringArg(args, "value")

	stored, err := t.secrets.Encrypt(value)
	if err != nil {
		return failure("encrypt secret %s: %v", path, err), nil
	}
	if err := t.store.Set(path, stored); err != nil {
		return failure("set secret %s: %v", path, err), nil
	}
	return map[string]interface{}{
		"success":   true,
		"path":      path,
		"encrypted": configstore.IsEncrypted(stored),
	}, nil
}

// =============================================================================
// MCP SERVERS
// =============================================================================

// ListMCPServersTool lists configured downstream MCP servers.
type ListMCPServersTool struct {
	store *configstore.Store
}

func (t *ListMCPServersTool) Name() string { return "list_mcp_servers" }
func (t *ListMCPServersTool) Description() string {
	return "List the names of configured MCP servers."
}
func (t *ListMCPServersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListMCPServersTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	names, err := mappingKeys(t.store, sectionMCPServers)
	if err != nil {
		return failure("list mcp servers: %v", err), nil
	}
	return map[string]interface{}{
		"success": true,
		"servers": names,
	}, nil
}

// AddMCPServerTool adds or replaces one MCP server entry.
type AddMCPServerTool struct {
	store *configstore.Store
}

func (t *AddMCPServerTool) Name() string { return "add_mcp_server" }
func (t *AddMCPServerTool) Description() string {
	return "Add or replace an MCP server entry (command, args, env, transport settings)."
}
func (t *AddMCPServerTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Server name",
			},
			"config": map[string]interface{}{
				"type":        "object",
				"description": "Server configuration object",
			},
		},
		"required": []string{"name", "config"},
	}
}
func (t *AddMCPServerTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}
	config, ok := objectArg(args, "config")
	if !ok {
		return failure("config must be an object"), nil
	}

	if err := t.store.Set(sectionMCPServers+"."+name, config); err != nil {
		return failure("add mcp server %s: %v", name, err), nil
	}
	return map[string]interface{}{"success": true, "name": name}, nil
}

// RemoveMCPServerTool removes one MCP server entry.
type RemoveMCPServerTool struct {
	store *configstore.Store
}

func (t *RemoveMCPServerTool) Name() string { return "remove_mcp_server" }
func (t *RemoveMCPServerTool) Description() string {
	return "Remove an MCP server entry by name."
}
func (t *RemoveMCPServerTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Server name",
			},
		},
		"required": []string{"name"},
	}
}
func (t *RemoveMCPServerTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	if err := t.store.Delete(sectionMCPServers + "." + name); err != nil {
		return failure("remove mcp server %s: %v", name, err), nil
	}
	return map[string]interface{}{"success": true, "name": name}, nil
}

// =============================================================================
// CHANNELS
// =============================================================================

// ListChannelsTool lists configured channel names.
type ListChannelsTool struct {
	store *configstore.Store
}

func (t *ListChannelsTool) Name() string { return "list_channels" }
func (t *ListChannelsTool) Description() string {
	return "List the names of configured channels."
}
func (t *ListChannelsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListChannelsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	names, err := mappingKeys(t.store, sectionChannels)
	if err != nil {
		return failure("list channels: %v", err), nil
	}
	return map[string]interface{}{
		"success":  true,
		"channels": names,
	}, nil
}

// GetChannelTool returns one channel's configuration.
type GetChannelTool struct {
	store *configstore.Store
}

func (t *GetChannelTool) Name() string { return "get_channel" }
func (t *GetChannelTool) Description() string {
	return "Get the configuration of a channel by name."
}
func (t *GetChannelTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Channel name",
			},
		},
		"required": []string{"name"},
	}
}
func (t *GetChannelTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	val, err := t.store.Get(sectionChannels + "." + name)
	if err != nil {
		return failure("get channel %s: %v", name, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"name":    name,
		"config":  val,
	}, nil
}

// SetChannelTool adds or replaces one channel's configuration.
type SetChannelTool struct {
	store *configstore.Store
}

func (t *SetChannelTool) Name() string { return "set_channel" }
func (t *SetChannelTool) Description() string {
	return "Add or replace a channel configuration by name."
}
func (t *SetChannelTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Channel name",
			},
			"config": map[string]interface{}{
				"type":        "object",
				"description": "Channel configuration object",
			},
		},
		"required": []string{"name", "config"},
	}
}
func (t *SetChannelTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}
	config, ok := objectArg(args, "config")
	if !ok {
		return failure("config must be an object"), nil
	}

	if err := t.store.Set(sectionChannels+"."+name, config); err != nil {
		return failure("set channel %s: %v", name, err), nil
	}
	return map[string]interface{}{"success": true, "name": name}, nil
}

// RemoveChannelTool removes one channel entry.
type RemoveChannelTool struct {
	store *configstore.Store
}

func (t *RemoveChannelTool) Name() string { return "remove_channel" }
func (t *RemoveChannelTool) Description() string {
	return "Remove a channel configuration by name."
}
func (t *RemoveChannelTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Channel name",
			},
		},
		"required": []string{"name"},
	}
}
func (t *RemoveChannelTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	if err := t.store.Delete(sectionChannels + "." + name); err != nil {
		return failure("remove channel %s: %v", name, err), nil
	}
	return map[string]interface{}{"success": true, "name": name}, nil
}

// =============================================================================
// PROVIDERS
// =============================================================================

// GetProviderTool returns one provider's configuration.
type GetProviderTool struct {
	store *configstore.Store
}

func (t *GetProviderTool) Name() string { return "get_provider" }
func (t *GetProviderTool) Description() string {
	return "Get the configuration of a model provider by name."
}
func (t *GetProviderTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Provider name",
			},
		},
		"required": []string{"name"},
	}
}
func (t *GetProviderTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	val, err := t.store.Get(sectionProviders + "." + name)
	if err != nil {
		return failure("get provider %s: %v", name, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"name":    name,
		"config":  val,
	}, nil
}

// SetProviderTool adds or replaces one provider's configuration.
type SetProviderTool struct {
	store *configstore.Store
}

func (t *SetProviderTool) Name() string { return "set_provider" }
func (t *SetProviderTool) Description() string {
	return "Add or replace a model provider configuration by name."
}
func (t *SetProviderTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Provider name",
			},
			"config": map[string]interface{}{
				"type":        "object",
				"description": "Provider configuration object",
			},
		},
		"required": []string{"name", "config"},
	}
}
func (t *SetProviderTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}
	config, ok := objectArg(args, "config")
	if !ok {
		return failure("config must be an object"), nil
	}

	if err := t.store.Set(sectionProviders+"."+name, config); err != nil {
		return failure("set provider %s: %v", name, err), nil
	}
	return map[string]interface{}{"success": true, "name": name}, nil
}

// =============================================================================
// RELOAD
// =============================================================================

// ReloadConfigTool re-reads the document from disk, discarding unsaved
// in-memory state.
type ReloadConfigTool struct {
	store *configstore.Store
}

func (t *ReloadConfigTool) Name() string { return "reload_config" }
func (t *ReloadConfigTool) Description() string {
	return "Reload the agent configuration from disk, picking up external edits."
}
func (t *ReloadConfigTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ReloadConfigTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.store.Reload(); err != nil {
		return failure("reload config: %v", err), nil
	}
	return map[string]interface{}{
		"success": true,
		"path":    t.store.Path(),
	}, nil
}
