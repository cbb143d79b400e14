package mcp

import (
	"context"

	"github.com/openclaw/mcp-browser-server/internal/profile"
)

// ListProfilesTool lists all registered browser profiles.
type ListProfilesTool struct {
	profiles *profile.Manager
}

func (t *ListProfilesTool) Name() string { return "list_profiles" }
func (t *ListProfilesTool) Description() string {
	return "List all registered browser profiles with their metadata."
}
func (t *ListProfilesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListProfilesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	profiles, err := t.profiles.List()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":  true,
		"profiles": profiles,
		"count":    len(profiles),
	}, nil
}

// CreateProfileTool registers a new named profile and creates its directory.
type CreateProfileTool struct {
	profiles *profile.Manager
}

func (t *CreateProfileTool) Name() string { return "create_profile" }
func (t *CreateProfileTool) Description() string {
	return "Create a named browser profile with a persistent user-data directory for cookies and login state."
}
func (t *CreateProfileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Unique profile name",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "Human-readable description",
			},
			"browser_channel": map[string]interface{}{
				"type":        "string",
				"description": "Browser channel identifier (default \"chrome\")",
			},
			"requires_human_login": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether a human must complete an interactive login first",
			},
			"login_notes": map[string]interface{}{
				"type":        "string",
				"description": "Free-text notes about the login procedure",
			},
			"session_timeout_hours": map[string]interface{}{
				"type":        "integer",
				"description": "Hours before the session is considered expired (default 24)",
			},
		},
		"required": []string{"name"},
	}
}
func (t *CreateProfileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	opts := profile.CreateOpts{
		Description:         getStringArg(args, "description"),
		BrowserChannel:      getStringArg(args, "browser_channel"),
		RequiresHumanLogin:  getBoolArg(args, "requires_human_login", false),
		LoginNotes:          getStringArg(args, "login_notes"),
		SessionTimeoutHours: uint64(getIntArg(args, "session_timeout_hours", 0)),
	}

	p, err := t.profiles.Create(name, opts)
	if err != nil {
		return failure("create profile %s: %v", name, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"profile": p,
	}, nil
}

// DeleteProfileTool removes a profile and its user-data directory.
type DeleteProfileTool struct {
	profiles *profile.Manager
}

func (t *DeleteProfileTool) Name() string { return "delete_profile" }
func (t *DeleteProfileTool) Description() string {
	return "Delete a browser profile and its user-data directory, including stored cookies and login state."
}
func (t *DeleteProfileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Profile name",
			},
		},
		"required": []string{"name"},
	}
}
func (t *DeleteProfileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	if err := t.profiles.Delete(name); err != nil {
		return failure("delete profile %s: %v", name, err), nil
	}
	return map[string]interface{}{
		"success": true,
		"name":    name,
	}, nil
}

// ValidateProfileTool probes a profile's state without failing.
type ValidateProfileTool struct {
	profiles *profile.Manager
}

func (t *ValidateProfileTool) Name() string { return "validate_profile" }
func (t *ValidateProfileTool) Description() string {
	return "Check whether a profile exists, has stored cookies, and has a still-valid session."
}
func (t *ValidateProfileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Profile name",
			},
		},
		"required": []string{"name"},
	}
}
func (t *ValidateProfileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "name")
	if name == "" {
		return failure("name is required"), nil
	}

	v := t.profiles.Validate(name)
	return map[string]interface{}{
		"success":       true,
		"name":          name,
		"exists":        v.Exists,
		"has_cookies":   v.HasCookies,
		"session_valid": v.SessionValid,
	}, nil
}
