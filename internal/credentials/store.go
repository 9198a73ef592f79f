package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Provider ids that own a credential.
const (
	Gemini   = "gemini"
	ChatGPT  = "chatgpt"
	DeepSeek = "deepseek"
)

// Providers lists every provider id that has a stored secret, in display order.
var Providers = []string{Gemini, ChatGPT, DeepSeek}

// Store persists one secret per provider id. Get never fails and reads an
// unset secret as "". Set with "" clears the secret.
type Store interface {
	Get(provider string) string
	Set(provider, secret string) error
}

// FileStore keeps the secrets of the invoking user in a JSON file.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	secrets map[string]string
}

// NewFileStore returns an empty store bound to path. An empty path selects
// PathOrDefault.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, secrets: make(map[string]string)}
}

// OpenFileStore returns a store populated from path. A missing file is not an
// error.
func OpenFileStore(path string) (*FileStore, error) {
	s := NewFileStore(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(provider string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secrets[normalize(provider)]
}

// Set overwrites the secret and writes the whole file.
func (s *FileStore) Set(provider, secret string) error {
	s.mu.Lock()
	if s.secrets == nil {
		s.secrets = make(map[string]string)
	}
	key := normalize(provider)
	prev, had := s.secrets[key]
	if secret == "" {
		delete(s.secrets, key)
	} else {
		s.secrets[key] = secret
	}
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		// Memory must match what is on disk.
		s.mu.Lock()
		if had {
			s.secrets[key] = prev
		} else {
			delete(s.secrets, key)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// PathOrDefault returns the configured path, or the per-user default
// ~/.config/cellgen/credentials.json.
func (s *FileStore) PathOrDefault() string {
	if s.path != "" {
		return s.path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return filepath.Join(os.TempDir(), "cellgen", "credentials.json")
	}
	return filepath.Join(home, ".config", "cellgen", "credentials.json")
}

// Load replaces the in-memory secrets with the file contents.
func (s *FileStore) Load() error {
	path := s.PathOrDefault()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credentials %q: %w", path, err)
	}
	secrets := make(map[string]string)
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &secrets); err != nil {
			return fmt.Errorf("parse credentials %q: %w", path, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = make(map[string]string, len(secrets))
	for k, v := range secrets {
		if v != "" {
			s.secrets[normalize(k)] = v
		}
	}
	return nil
}

// Save writes the secrets through a temp file and rename so a crash never
// leaves a truncated file behind.
func (s *FileStore) Save() error {
	path := s.PathOrDefault()
	s.mu.RLock()
	b, err := json.MarshalIndent(s.secrets, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// MemoryStore is a Store that never touches disk.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func (m *MemoryStore) Get(provider string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.secrets[normalize(provider)]
}

func (m *MemoryStore) Set(provider, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secrets == nil {
		m.secrets = make(map[string]string)
	}
	m.secrets[normalize(provider)] = secret
	return nil
}

// Overlay reads keys from the environment before falling back to base.
// Writes always go to base.
type Overlay struct {
	base Store
	keys map[string]string
}

func NewOverlay(base Store, keys map[string]string) *Overlay {
	normalized := make(map[string]string, len(keys))
	for k, v := range keys {
		if v != "" {
			normalized[normalize(k)] = v
		}
	}
	return &Overlay{base: base, keys: normalized}
}

func (o *Overlay) Get(provider string) string {
	if v := o.keys[normalize(provider)]; v != "" {
		return v
	}
	return o.base.Get(provider)
}

func (o *Overlay) Set(provider, secret string) error {
	return o.base.Set(provider, secret)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
