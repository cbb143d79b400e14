package configstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := newTestStore(t)
	if got := s.Sections(); len(got) != 0 {
		t.Errorf("expected no sections, got %v", got)
	}
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("channels.telegram.enabled", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := s.Get("channels.telegram.enabled")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != true {
		t.Errorf("expected true, got %v", val)
	}

	// Intermediate mappings were created on the way down.
	section, err := s.Get("channels")
	if err != nil {
		t.Fatalf("Get channels: %v", err)
	}
	if _, ok := section.(map[string]interface{})["telegram"]; !ok {
		t.Errorf("expected telegram under channels, got %v", section)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("nothing.here"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestSetThroughScalarFails(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("agent.name", "clawde"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// agent.name is a string; descending through it must fail and must not
	// clobber the existing value.
	if err := s.Set("agent.name.nested", 1); err == nil {
		t.Fatal("expected error when descending through a scalar")
	}
	val, err := s.Get("agent.name")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "clawde" {
		t.Errorf("expected original value preserved, got %v", val)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("providers.openai.api_key", "k"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete("providers.openai.api_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("providers.openai.api_key"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound after delete, got %v", err)
	}

	if err := s.Delete("providers.missing"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound for missing path, got %v", err)
	}
}

func TestSections(t *testing.T) {
	s := newTestStore(t)
	for _, sec := range []string{"zeta", "alpha", "mid"} {
		if err := s.Set(sec+".x", 1); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	got := s.Sections()
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sorted sections %v, got %v", want, got)
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Set("mcp_servers.files.command", "npx"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	val, err := s2.Get("mcp_servers.files.command")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "npx" {
		t.Errorf("expected 'npx', got %v", val)
	}

	// No stray temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be renamed away, stat err: %v", err)
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.WriteFile(path, []byte("edited:\n  externally: true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	val, err := s.Get("edited.externally")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != true {
		t.Errorf("expected reloaded value true, got %v", val)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("section.list", []interface{}{"a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := s.Get("section")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	val.(map[string]interface{})["list"] = "mutated"

	again, err := s.Get("section.list")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := again.([]interface{}); !ok {
		t.Errorf("store was mutated through a returned value: %v", again)
	}
}
