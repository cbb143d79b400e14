// Package configstore manages the agent configuration document that the
// config CRUD tools operate on.
//
// The document is schema-free: a YAML mapping loaded into generic values.
// Fields are addressed by dotted paths ("channels.telegram.bot_token") and
// resolved with a recursive tree walk. Every mutation rewrites the whole
// file via temp-file + rename.
package configstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrPathNotFound is returned when a dotted path does not resolve.
var ErrPathNotFound = errors.New("config path not found")

// Store holds the agent configuration document.
//
// Reads take the shared lock; mutations take the exclusive lock, apply the
// change to the in-memory tree, and persist before returning. The file is
// single-writer within this process.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  map[string]interface{}
}

// Open loads the document at path, starting empty when the file does not
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: map[string]interface{}{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if s.doc == nil {
		s.doc = map[string]interface{}{}
	}
	return s, nil
}

// Path returns the document's file path.
func (s *Store) Path() string { return s.path }

// Dir returns the directory holding the document (and the secret key file).
func (s *Store) Dir() string { return filepath.Dir(s.path) }

// Sections lists the document's top-level keys, sorted.
func (s *Store) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.doc))
	for k := range s.doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get resolves a dotted path and returns a deep copy of the value.
func (s *Store) Get(path string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, err := getNested(s.doc, splitPath(path))
	if err != nil {
		return nil, fmt.Errorf("path %q: %w", path, err)
	}
	return deepCopy(val), nil
}

// Set writes a value at a dotted path, creating intermediate mappings as
// needed, and persists the document.
func (s *Store) Set(path string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := setNested(s.doc, splitPath(path), value); err != nil {
		return fmt.Errorf("path %q: %w", path, err)
	}
	return s.saveLocked()
}

// Delete removes the value at a dotted path and persists the document.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := deleteNested(s.doc, splitPath(path)); err != nil {
		return fmt.Errorf("path %q: %w", path, err)
	}
	return s.saveLocked()
}

// Reload replaces the in-memory document with the file's current contents.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.doc = map[string]interface{}{}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read config %s: %w", s.path, err)
	}

	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getNested(node interface{}, parts []string) (interface{}, error) {
	if len(parts) == 0 {
		return node, nil
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("segment %q is not a mapping: %w", parts[0], ErrPathNotFound)
	}
	child, ok := m[parts[0]]
	if !ok {
		return nil, fmt.Errorf("segment %q: %w", parts[0], ErrPathNotFound)
	}
	return getNested(child, parts[1:])
}

func setNested(m map[string]interface{}, parts []string, value interface{}) error {
	if len(parts) == 0 {
		return errors.New("empty path")
	}
	if len(parts) == 1 {
		m[parts[0]] = value
		return nil
	}

	child, ok := m[parts[0]]
	if !ok {
		next := map[string]interface{}{}
		m[parts[0]] = next
		return setNested(next, parts[1:], value)
	}
	childMap, ok := child.(map[string]interface{})
	if !ok {
		return fmt.Errorf("segment %q is not a mapping", parts[0])
	}
	return setNested(childMap, parts[1:], value)
}

func deleteNested(m map[string]interface{}, parts []string) error {
	if len(parts) == 0 {
		return errors.New("empty path")
	}
	if len(parts) == 1 {
		if _, ok := m[parts[0]]; !ok {
			return fmt.Errorf("segment %q: %w", parts[0], ErrPathNotFound)
		}
		delete(m, parts[0])
		return nil
	}

	child, ok := m[parts[0]]
	if !ok {
		return fmt.Errorf("segment %q: %w", parts[0], ErrPathNotFound)
	}
	childMap, ok := child.(map[string]interface{})
	if !ok {
		return fmt.Errorf("segment %q is not a mapping", parts[0])
	}
	return deleteNested(childMap, parts[1:])
}

// deepCopy detaches returned values from the live tree so callers cannot
// mutate the store behind its lock.
func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
