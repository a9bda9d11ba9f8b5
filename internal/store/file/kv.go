// Package file implements store.KV as one JSON document per key on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/relaychat/internal/store"
)

// KV stores each value at {dir}/{namespace}/{escaped key}.json.
type KV struct {
	dir string
	mu  sync.Mutex
}

// New creates the root directory if needed.
func New(dir string) (*KV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &KV{dir: dir}, nil
}

func (s *KV) path(namespace, key string) (string, error) {
	name := url.QueryEscape(key)
	if name == "" || name == "." || name == ".." || !filepath.IsLocal(name) {
		return "", os.ErrInvalid
	}
	return filepath.Join(s.dir, url.QueryEscape(namespace), name+".json"), nil
}

func (s *KV) Get(_ context.Context, namespace, key string) (json.RawMessage, error) {
	p, err := s.path(namespace, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *KV) Set(_ context.Context, namespace, key string, value json.RawMessage) error {
	p, err := s.path(namespace, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Atomic write: temp file → rename
	tmpFile, err := os.CreateTemp(dir, "kv-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(value); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, p); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (s *KV) Delete(_ context.Context, namespace, key string) error {
	p, err := s.path(namespace, key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *KV) Close() error { return nil }
