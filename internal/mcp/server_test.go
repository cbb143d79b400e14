package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/mcp-browser-server/internal/browser"
	"github.com/openclaw/mcp-browser-server/internal/config"
	"github.com/openclaw/mcp-browser-server/internal/configstore"
	"github.com/openclaw/mcp-browser-server/internal/profile"
)

func newTestServer(t *testing.T, withStore bool) *Server {
	t.Helper()

	cfg := config.DefaultConfig()

	profiles, err := profile.NewManagerWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("profile.NewManagerWithDir: %v", err)
	}
	manager := browser.NewManager(browser.DefaultConfig(), profiles)

	var store *configstore.Store
	if withStore {
		store, err = configstore.Open(filepath.Join(t.TempDir(), "agent.yaml"))
		if err != nil {
			t.Fatalf("configstore.Open: %v", err)
		}
	}

	return NewServer(cfg, manager, profiles, store)
}

func payload(t *testing.T, result interface{}) map[string]interface{} {
	t.Helper()
	m, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map payload, got %T", result)
	}
	return m
}

func expectSuccess(t *testing.T, result interface{}) map[string]interface{} {
	t.Helper()
	m := payload(t, result)
	if m["success"] != true {
		t.Fatalf("expected success, got %v", m)
	}
	return m
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t, true)

	expected := []string{
		// browser actions
		"navigate", "click", "fill", "get_text", "hover", "press_key",
		"wait", "screenshot", "evaluate_script", "extract_table",
		"handle_dialog", "get_dom", "get_url",
		// pages
		"list_pages", "new_page", "select_page", "close_page", "shutdown_browser",
		// profiles
		"list_profiles", "create_profile", "delete_profile", "validate_profile",
		// plan replay
		"execute_plan",
		// config CRUD
		"list_sections", "get_section", "set_section", "get_value", "set_value",
		"get_secret", "set_secret", "list_mcp_servers", "add_mcp_server",
		"remove_mcp_server", "list_channels", "get_channel", "set_channel",
		"remove_channel", "get_provider", "set_provider", "reload_config",
	}
	for _, name := range expected {
		tool, ok := s.tools[name]
		if !ok {
			t.Errorf("tool %q not registered", name)
			continue
		}
		if tool.Description() == "" {
			t.Errorf("tool %q has no description", name)
		}
		schema := tool.InputSchema()
		if schema["type"] != "object" {
			t.Errorf("tool %q schema is not an object: %v", name, schema)
		}
		if _, err := json.Marshal(schema); err != nil {
			t.Errorf("tool %q schema not serializable: %v", name, err)
		}
	}
	if len(s.tools) != len(expected) {
		t.Errorf("expected %d tools, got %d", len(expected), len(s.tools))
	}
}

func TestConfigToolsDisabledWithoutStore(t *testing.T) {
	s := newTestServer(t, false)

	for _, name := range []string{"get_value", "set_secret", "list_sections", "reload_config"} {
		if _, ok := s.tools[name]; ok {
			t.Errorf("tool %q should not be registered without a store", name)
		}
	}
	if _, ok := s.tools["navigate"]; !ok {
		t.Error("browser tools should still be registered")
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	s := newTestServer(t, false)
	if _, err := s.ExecuteTool(context.Background(), "no_such_tool", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestConfigValueTools(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	expectSuccess(t, mustExecute(t, s, ctx, "set_value", map[string]interface{}{
		"path":  "agent.model",
		"value": "opus",
	}))

	got := expectSuccess(t, mustExecute(t, s, ctx, "get_value", map[string]interface{}{
		"path": "agent.model",
	}))
	if got["value"] != "opus" {
		t.Errorf("expected 'opus', got %v", got["value"])
	}

	missing := payload(t, mustExecute(t, s, ctx, "get_value", map[string]interface{}{
		"path": "agent.missing",
	}))
	if missing["success"] != false {
		t.Errorf("expected failure payload, got %v", missing)
	}
	if !strings.Contains(missing["error"].(string), "agent.missing") {
		t.Errorf("expected the path in the error, got %v", missing["error"])
	}
}

func TestConfigSectionTools(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	expectSuccess(t, mustExecute(t, s, ctx, "set_section", map[string]interface{}{
		"section": "gateway",
		"data":    map[string]interface{}{"port": float64(18789)},
	}))

	sections := expectSuccess(t, mustExecute(t, s, ctx, "list_sections", nil))
	names, _ := sections["sections"].([]string)
	if len(names) != 1 || names[0] != "gateway" {
		t.Errorf("expected [gateway], got %v", sections["sections"])
	}

	section := expectSuccess(t, mustExecute(t, s, ctx, "get_section", map[string]interface{}{
		"section": "gateway",
	}))
	data, _ := section["data"].(map[string]interface{})
	if data["port"] != float64(18789) {
		t.Errorf("expected port 18789, got %v", data)
	}
}

func TestSecretTools(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	set := expectSuccess(t, mustExecute(t, s, ctx, "set_secret", map[string]interface{}{
		"path":  "channels.telegram.bot_token",
		"value": "123:abc",
	}))
	if set["encrypted"] != true {
		t.Errorf("expected encrypted secret, got %v", set)
	}

	// The raw stored value must be ciphertext, not the plaintext.
	raw := expectSuccess(t, mustExecute(t, s, ctx, "get_value", map[string]interface{}{
		"path": "channels.telegram.bot_token",
	}))
	stored, _ := raw["value"].(string)
	if !strings.HasPrefix(stored, "enc:v1:") {
		t.Errorf("expected enc:v1: prefix on stored value, got %q", stored)
	}

	got := expectSuccess(t, mustExecute(t, s, ctx, "get_secret", map[string]interface{}{
		"path": "channels.telegram.bot_token",
	}))
	if got["value"] != "123:abc" {
		t.Errorf("expected decrypted secret, got %v", got["value"])
	}
}

func TestMCPServerTools(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	expectSuccess(t, mustExecute(t, s, ctx, "add_mcp_server", map[string]interface{}{
		"name":   "files",
		"config": map[string]interface{}{"command": "npx", "args": []interface{}{"mcp-files"}},
	}))

	list := expectSuccess(t, mustExecute(t, s, ctx, "list_mcp_servers", nil))
	servers, _ := list["servers"].([]string)
	if len(servers) != 1 || servers[0] != "files" {
		t.Errorf("expected [files], got %v", list["servers"])
	}

	expectSuccess(t, mustExecute(t, s, ctx, "remove_mcp_server", map[string]interface{}{
		"name": "files",
	}))
	list = expectSuccess(t, mustExecute(t, s, ctx, "list_mcp_servers", nil))
	servers, _ = list["servers"].([]string)
	if len(servers) != 0 {
		t.Errorf("expected no servers, got %v", servers)
	}
}

func TestChannelAndProviderTools(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	expectSuccess(t, mustExecute(t, s, ctx, "set_channel", map[string]interface{}{
		"name":   "telegram",
		"config": map[string]interface{}{"enabled": true},
	}))
	ch := expectSuccess(t, mustExecute(t, s, ctx, "get_channel", map[string]interface{}{
		"name": "telegram",
	}))
	cfg, _ := ch["config"].(map[string]interface{})
	if cfg["enabled"] != true {
		t.Errorf("expected enabled channel, got %v", ch)
	}

	expectSuccess(t, mustExecute(t, s, ctx, "set_provider", map[string]interface{}{
		"name":   "anthropic",
		"config": map[string]interface{}{"base_url": "https://api.anthropic.com"},
	}))
	prov := expectSuccess(t, mustExecute(t, s, ctx, "get_provider", map[string]interface{}{
		"name": "anthropic",
	}))
	cfg, _ = prov["config"].(map[string]interface{})
	if cfg["base_url"] != "https://api.anthropic.com" {
		t.Errorf("unexpected provider config: %v", prov)
	}

	expectSuccess(t, mustExecute(t, s, ctx, "remove_channel", map[string]interface{}{
		"name": "telegram",
	}))
	gone := payload(t, mustExecute(t, s, ctx, "get_channel", map[string]interface{}{
		"name": "telegram",
	}))
	if gone["success"] != false {
		t.Errorf("expected failure for removed channel, got %v", gone)
	}
}

func TestProfileTools(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	created := expectSuccess(t, mustExecute(t, s, ctx, "create_profile", map[string]interface{}{
		"name":                 "github",
		"description":          "GitHub login",
		"requires_human_login": true,
	}))
	prof, ok := created["profile"].(profile.Profile)
	if !ok {
		t.Fatalf("expected profile.Profile payload, got %T", created["profile"])
	}
	if prof.Name != "github" || !prof.RequiresHumanLogin {
		t.Errorf("unexpected profile: %+v", prof)
	}

	dup := payload(t, mustExecute(t, s, ctx, "create_profile", map[string]interface{}{
		"name": "github",
	}))
	if dup["success"] != false {
		t.Errorf("expected duplicate create to fail, got %v", dup)
	}

	list := expectSuccess(t, mustExecute(t, s, ctx, "list_profiles", nil))
	if list["count"] != 1 {
		t.Errorf("expected 1 profile, got %v", list["count"])
	}

	valid := expectSuccess(t, mustExecute(t, s, ctx, "validate_profile", map[string]interface{}{
		"name": "github",
	}))
	if valid["exists"] != true {
		t.Errorf("expected exists true, got %v", valid)
	}

	expectSuccess(t, mustExecute(t, s, ctx, "delete_profile", map[string]interface{}{
		"name": "github",
	}))
	gone := expectSuccess(t, mustExecute(t, s, ctx, "validate_profile", map[string]interface{}{
		"name": "github",
	}))
	if gone["exists"] != false {
		t.Errorf("expected exists false after delete, got %v", gone)
	}
}

func TestExecutePlanValidation(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	missing := payload(t, mustExecute(t, s, ctx, "execute_plan", map[string]interface{}{}))
	if missing["success"] != false {
		t.Errorf("expected failure without steps, got %v", missing)
	}

	// An unknown path fails at dispatch, before any browser is launched.
	unknown := payload(t, mustExecute(t, s, ctx, "execute_plan", map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{"path": "/no_such_op"},
		},
	}))
	if unknown["success"] != false {
		t.Fatalf("expected failure for unknown path, got %v", unknown)
	}
	if !strings.Contains(unknown["error"].(string), "/no_such_op") {
		t.Errorf("expected the path in the error, got %v", unknown["error"])
	}
}

func TestMarshalToolPayload(t *testing.T) {
	out := marshalToolPayload("demo", map[string]interface{}{"success": true})
	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["success"] != true {
		t.Errorf("unexpected payload: %v", decoded)
	}

	// Non-serializable results degrade to an error payload instead of panicking.
	out = marshalToolPayload("demo", map[string]interface{}{"fn": func() {}})
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal fallback: %v", err)
	}
	if decoded["success"] != false {
		t.Errorf("expected failure payload, got %v", decoded)
	}
}

func mustExecute(t *testing.T, s *Server, ctx context.Context, name string, args map[string]interface{}) interface{} {
	t.Helper()
	if args == nil {
		args = map[string]interface{}{}
	}
	out, err := s.ExecuteTool(ctx, name, args)
	if err != nil {
		t.Fatalf("ExecuteTool(%s): %v", name, err)
	}
	return out
}
