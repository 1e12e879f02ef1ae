package settings

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store persists the raw configuration record, the way a browser extension
// keeps it under one local-storage key.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, raw []byte) error
}

// Load reads the configuration from s. The returned configuration is always
// usable; a non-nil error only reports why defaults were substituted.
func Load(ctx context.Context, s Store) (Configuration, error) {
	if s == nil {
		return Default(), nil
	}
	raw, err := s.Load(ctx)
	if err != nil {
		return Default(), err
	}
	return Decode(raw), nil
}

// Save writes cfg to s.
func Save(ctx context.Context, s Store, cfg Configuration) error {
	if s == nil {
		return nil
	}
	return s.Save(ctx, Encode(cfg))
}

// FileStore keeps the record in a JSON file, by default ~/.flo/config.json.
type FileStore struct {
	Path string
}

// Load returns the file contents, or nil when the file does not exist yet.
func (f FileStore) Load(context.Context) ([]byte, error) {
	path := strings.TrimSpace(f.Path)
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return raw, err
}

// Save writes raw with 0600 permissions, creating the parent directory.
func (f FileStore) Save(_ context.Context, raw []byte) error {
	path := strings.TrimSpace(f.Path)
	if path == "" {
		return errors.New("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MemoryStore keeps the record in memory.
type MemoryStore struct {
	Raw []byte
}

func (m *MemoryStore) Load(context.Context) ([]byte, error) {
	return append([]byte(nil), m.Raw...), nil
}

func (m *MemoryStore) Save(_ context.Context, raw []byte) error {
	m.Raw = append([]byte(nil), raw...)
	return nil
}
