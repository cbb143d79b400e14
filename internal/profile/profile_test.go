package profile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManagerWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewManagerWithDir: %v", err)
	}
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)

	created, err := m.Create("work", CreateOpts{Description: "work account"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Name != "work" {
		t.Errorf("expected name 'work', got %q", created.Name)
	}
	if created.UsageCount != 0 {
		t.Errorf("expected usage count 0, got %d", created.UsageCount)
	}
	if !created.CreatedAt.Equal(created.LastUsed) {
		t.Errorf("expected created_at == last_used, got %v / %v", created.CreatedAt, created.LastUsed)
	}
	if created.BrowserChannel != "chrome" {
		t.Errorf("expected default channel 'chrome', got %q", created.BrowserChannel)
	}
	if created.SessionTimeoutHours != 24 {
		t.Errorf("expected default session timeout 24, got %d", created.SessionTimeoutHours)
	}

	got, err := m.Get("work")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "work" || got.UsageCount != 0 {
		t.Errorf("Get returned unexpected record: %+v", got)
	}

	if _, err := os.Stat(created.UserDataDir); err != nil {
		t.Errorf("expected user data dir to exist: %v", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Create("dup", CreateOpts{Description: "original"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = m.Create("dup", CreateOpts{Description: "replacement"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// The original record must be untouched.
	got, err := m.Get("dup")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != first.Description {
		t.Errorf("expected description %q, got %q", first.Description, got.Description)
	}
}

func TestGetNotFound(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	m := newTestManager(t)

	profiles, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("expected empty list, got %d", len(profiles))
	}

	for _, name := range []string{"a", "b", "c"} {
		if _, err := m.Create(name, CreateOpts{}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	profiles, err = m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(profiles) != 3 {
		t.Errorf("expected 3 profiles, got %d", len(profiles))
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)

	created, err := m.Create("gone", CreateOpts{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(created.UserDataDir); !os.IsNotExist(err) {
		t.Errorf("expected user data dir to be removed, stat err: %v", err)
	}

	if err := m.Delete("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTouch(t *testing.T) {
	m := newTestManager(t)

	created, err := m.Create("busy", CreateOpts{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Touch("busy"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, err := m.Get("busy")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("expected usage count 1, got %d", got.UsageCount)
	}
	if got.LastUsed.Before(created.LastUsed) {
		t.Errorf("expected last_used to advance, got %v before %v", got.LastUsed, created.LastUsed)
	}

	if err := m.Touch("busy"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ = m.Get("busy")
	if got.UsageCount != 2 {
		t.Errorf("expected usage count 2, got %d", got.UsageCount)
	}

	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIsSessionValid(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Create("fresh", CreateOpts{SessionTimeoutHours: 24}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	valid, err := m.IsSessionValid("fresh")
	if err != nil {
		t.Fatalf("IsSessionValid: %v", err)
	}
	if !valid {
		t.Error("expected a fresh profile's session to be valid")
	}
}

func TestValidate(t *testing.T) {
	m := newTestManager(t)

	t.Run("nonexistent profile", func(t *testing.T) {
		v := m.Validate("missing")
		if v.Exists || v.HasCookies || v.SessionValid {
			t.Errorf("expected all-false validation, got %+v", v)
		}
	})

	t.Run("fresh profile without cookies", func(t *testing.T) {
		if _, err := m.Create("plain", CreateOpts{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		v := m.Validate("plain")
		if !v.Exists {
			t.Error("expected Exists true")
		}
		if v.HasCookies {
			t.Error("expected HasCookies false for empty data dir")
		}
		if !v.SessionValid {
			t.Error("expected SessionValid true right after creation")
		}
	})

	t.Run("cookie file detected", func(t *testing.T) {
		created, err := m.Create("cookies", CreateOpts{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		cookiePath := filepath.Join(created.UserDataDir, "Default", "Cookies")
		if err := os.MkdirAll(filepath.Dir(cookiePath), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(cookiePath, []byte("sqlite"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if v := m.Validate("cookies"); !v.HasCookies {
			t.Error("expected HasCookies true")
		}
	})
}

func TestGetOrCreateIdempotent(t *testing.T) {
	m := newTestManager(t)

	first, err := m.GetOrCreate("idem", CreateOpts{Description: "one"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := m.GetOrCreate("idem", CreateOpts{Description: "two"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("expected identical created_at, got %v / %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Description != "one" {
		t.Errorf("expected original description preserved, got %q", second.Description)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m1, err := NewManagerWithDir(dir)
	if err != nil {
		t.Fatalf("NewManagerWithDir: %v", err)
	}
	created, err := m1.Create("persist", CreateOpts{
		Description:         "round trip",
		RequiresHumanLogin:  true,
		LoginNotes:          "use the backup codes",
		SessionTimeoutHours: 48,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second manager over the same directory must see the same record.
	m2, err := NewManagerWithDir(dir)
	if err != nil {
		t.Fatalf("NewManagerWithDir: %v", err)
	}
	got, err := m2.Get("persist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != created.Description ||
		got.RequiresHumanLogin != created.RequiresHumanLogin ||
		got.LoginNotes != created.LoginNotes ||
		got.SessionTimeoutHours != created.SessionTimeoutHours {
		t.Errorf("round-tripped record differs: %+v vs %+v", got, created)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed across reload: %v vs %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestUserDataDir(t *testing.T) {
	m := newTestManager(t)

	created, err := m.Create("dirs", CreateOpts{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dir, err := m.UserDataDir("dirs")
	if err != nil {
		t.Fatalf("UserDataDir: %v", err)
	}
	if dir != created.UserDataDir {
		t.Errorf("expected %q, got %q", created.UserDataDir, dir)
	}

	if _, err := m.UserDataDir("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvProfilesDir, dir)

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Dir() != dir {
		t.Errorf("expected profiles dir %q, got %q", dir, m.Dir())
	}
}

func TestRegistryFileShape(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Create("shape", CreateOpts{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(m.Dir(), "profiles.json"))
	if err != nil {
		t.Fatalf("read registry: %v", err)
	}

	var file struct {
		Version  string `json:"version"`
		Profiles map[string]struct {
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"profiles"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("parse registry: %v", err)
	}
	if file.Version != "1.0" {
		t.Errorf("expected version 1.0, got %q", file.Version)
	}
	rec, ok := file.Profiles["shape"]
	if !ok {
		t.Fatal("expected profile 'shape' in registry file")
	}
	if rec.Name != "shape" || rec.CreatedAt.IsZero() {
		t.Errorf("unexpected registry record: %+v", rec)
	}
}
