// Package profile manages named browser profiles on disk.
//
// A profile binds a name to a private Chrome user-data-dir so cookies,
// localStorage, and saved passwords survive across launches. Users log in
// manually once (SSO/MFA/password) and automation reuses the session later.
//
// Storage locations:
//   - Linux: ~/.local/share/mcp-browser-server/profiles/
//   - macOS: ~/Library/Application Support/mcp-browser-server/profiles/
//   - Override: BROWSER_PROFILES_DIR env var
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EnvProfilesDir overrides the OS-default profiles root when set.
const EnvProfilesDir = "BROWSER_PROFILES_DIR"

// registryVersion tags the profiles.json schema.
const registryVersion = "1.0"

var (
	// ErrNotFound is returned when a profile name is not in the registry.
	ErrNotFound = errors.New("profile not found")
	// ErrAlreadyExists is returned when creating a profile whose name is taken.
	ErrAlreadyExists = errors.New("profile already exists")
)

// Profile is the metadata record for a single browser profile.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Absolute path to the Chrome user-data-dir for this profile.
	UserDataDir string `json:"user_data_dir"`
	// Browser channel: "chrome", "msedge", "chromium".
	BrowserChannel string    `json:"browser_channel"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsed       time.Time `json:"last_used"`
	UsageCount     uint64    `json:"usage_count"`
	// RequiresHumanLogin marks profiles where a human must log in before
	// automation is useful.
	RequiresHumanLogin bool   `json:"requires_human_login"`
	LoginNotes         string `json:"login_notes"`
	// Hours before the saved session is considered expired.
	SessionTimeoutHours uint64 `json:"session_timeout_hours"`
}

// CreateOpts are the caller-supplied attributes for a new profile.
type CreateOpts struct {
	Description        string
	BrowserChannel     string
	RequiresHumanLogin bool
	LoginNotes         string
	// Zero means the default of 24 hours.
	SessionTimeoutHours uint64
}

// Validation is the non-throwing status probe result for a profile.
type Validation struct {
	Exists       bool `json:"exists"`
	HasCookies   bool `json:"has_cookies"`
	SessionValid bool `json:"session_valid"`
}

// registryFile is the on-disk profiles.json layout.
type registryFile struct {
	Profiles map[string]Profile `json:"profiles"`
	Version  string             `json:"version"`
}

// Manager owns the profile registry and the per-profile data directories.
//
// All registry mutations are read-modify-write cycles against profiles.json;
// the mutex serializes them so concurrent tool calls cannot lose updates.
// The file is fully rewritten via a temp file + rename so a crash mid-write
// never leaves a truncated registry.
type Manager struct {
	mu  sync.Mutex
	dir string
}

// NewManager creates a Manager rooted at the OS-appropriate profiles dir,
// creating the directory if needed.
func NewManager() (*Manager, error) {
	dir, err := resolveProfilesDir()
	if err != nil {
		return nil, err
	}
	return NewManagerWithDir(dir)
}

// NewManagerWithDir creates a Manager rooted at a specific directory
// (useful for testing).
func NewManagerWithDir(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profiles dir %s: %w", dir, err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the profiles root directory.
func (m *Manager) Dir() string { return m.dir }

// List returns all registered profiles.
func (m *Manager) List() ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load()
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(file.Profiles))
	for _, p := range file.Profiles {
		out = append(out, p)
	}
	return out, nil
}

// Get returns a single profile by name.
func (m *Manager) Get(name string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(name)
}

func (m *Manager) getLocked(name string) (Profile, error) {
	file, err := m.load()
	if err != nil {
		return Profile{}, err
	}
	p, ok := file.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Create registers a new profile and creates its user-data-dir.
func (m *Manager) Create(name string, opts CreateOpts) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(name, opts)
}

func (m *Manager) createLocked(name string, opts CreateOpts) (Profile, error) {
	file, err := m.load()
	if err != nil {
		return Profile{}, err
	}
	if _, ok := file.Profiles[name]; ok {
		return Profile{}, fmt.Errorf("profile %q: %w", name, ErrAlreadyExists)
	}

	dataDir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return Profile{}, fmt.Errorf("create profile data dir %s: %w", dataDir, err)
	}

	channel := opts.BrowserChannel
	if channel == "" {
		channel = "chrome"
	}
	timeout := opts.SessionTimeoutHours
	if timeout == 0 {
		timeout = 24
	}

	now := time.Now().UTC()
	p := Profile{
		Name:                name,
		Description:         opts.Description,
		UserDataDir:         dataDir,
		BrowserChannel:      channel,
		CreatedAt:           now,
		LastUsed:            now,
		UsageCount:          0,
		RequiresHumanLogin:  opts.RequiresHumanLogin,
		LoginNotes:          opts.LoginNotes,
		SessionTimeoutHours: timeout,
	}

	file.Profiles[name] = p
	if err := m.save(file); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// GetOrCreate returns the existing profile or creates a fresh one.
// It never fails with ErrAlreadyExists.
func (m *Manager) GetOrCreate(name string, opts CreateOpts) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.getLocked(name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	return m.createLocked(name, opts)
}

// Delete removes the registry entry and recursively deletes the profile's
// data directory. The entry is removed even when the directory deletion
// fails; the failure is still surfaced to the caller.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load()
	if err != nil {
		return err
	}
	p, ok := file.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}

	delete(file.Profiles, name)
	if err := m.save(file); err != nil {
		return err
	}

	if p.UserDataDir != "" {
		if err := os.RemoveAll(p.UserDataDir); err != nil {
			return fmt.Errorf("remove profile data %s: %w", p.UserDataDir, err)
		}
	}
	return nil
}

// Touch updates last_used to now and increments the usage counter.
func (m *Manager) Touch(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load()
	if err != nil {
		return err
	}
	p, ok := file.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}

	p.LastUsed = time.Now().UTC()
	p.UsageCount++
	file.Profiles[name] = p
	return m.save(file)
}

// IsSessionValid reports whether the profile's saved session is still
// within its timeout window.
func (m *Manager) IsSessionValid(name string) (bool, error) {
	p, err := m.Get(name)
	if err != nil {
		return false, err
	}
	timeout := time.Duration(p.SessionTimeoutHours) * time.Hour
	return time.Since(p.LastUsed) < timeout, nil
}

// UserDataDir returns the user-data-dir path for a profile.
func (m *Manager) UserDataDir(name string) (string, error) {
	p, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return p.UserDataDir, nil
}

// Validate probes a profile's status without failing: a missing profile
// reports exists=false rather than an error.
func (m *Manager) Validate(name string) Validation {
	p, err := m.Get(name)
	if err != nil {
		return Validation{}
	}

	hasCookies := false
	if _, err := os.Stat(filepath.Join(p.UserDataDir, "Default", "Cookies")); err == nil {
		hasCookies = true
	} else if _, err := os.Stat(filepath.Join(p.UserDataDir, "Cookies")); err == nil {
		hasCookies = true
	}

	valid, err := m.IsSessionValid(name)
	if err != nil {
		valid = false
	}

	return Validation{
		Exists:       true,
		HasCookies:   hasCookies,
		SessionValid: valid,
	}
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.dir, "profiles.json")
}

func (m *Manager) load() (registryFile, error) {
	file := registryFile{
		Profiles: make(map[string]Profile),
		Version:  registryVersion,
	}

	raw, err := os.ReadFile(m.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return file, fmt.Errorf("read %s: %w", m.registryPath(), err)
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("parse %s: %w", m.registryPath(), err)
	}
	if file.Profiles == nil {
		file.Profiles = make(map[string]Profile)
	}
	return file, nil
}

// save rewrites the whole registry atomically: write a temp file in the same
// directory, then rename over profiles.json.
func (m *Manager) save(file registryFile) error {
	file.Version = registryVersion

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile registry: %w", err)
	}

	path := m.registryPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// resolveProfilesDir picks the profiles root: env override first, then the
// OS data directory.
func resolveProfilesDir() (string, error) {
	if dir := os.Getenv(EnvProfilesDir); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}

	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	case "windows":
		if d := os.Getenv("APPDATA"); d != "" {
			base = d
		} else {
			base = filepath.Join(home, "AppData", "Roaming")
		}
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			base = d
		} else {
			base = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(base, "mcp-browser-server", "profiles"), nil
}
