// Package store defines the persisted key-value contract used for queues,
// history, role settings and the credential pool, plus typed helpers on top of it.
//
// Backends live in sub-packages: file (standalone default), sqlite, pg and mongo.
// Memory is provided here for tests and ephemeral runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by KV.Get when the key has never been written.
var ErrNotFound = errors.New("store: not found")

// Namespaces used by the dispatch engine.
const (
	NamespaceQueue       = "queue"
	NamespaceHistory     = "history"
	NamespaceEntity      = "entity"
	NamespaceGroup       = "group"
	NamespaceGlobal      = "global"
	NamespaceCredentials = "credentials"
)

// KV is a point read/write store of JSON documents addressed by namespace and key.
type KV interface {
	Get(ctx context.Context, namespace, key string) (json.RawMessage, error)
	Set(ctx context.Context, namespace, key string, value json.RawMessage) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

// Load decodes the value at namespace/key into a T, returning def when the key is missing.
func Load[T any](ctx context.Context, kv KV, namespace, key string, def T) (T, error) {
	raw, err := kv.Get(ctx, namespace, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

// Save encodes v as JSON and writes it at namespace/key.
func Save(ctx context.Context, kv KV, namespace, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	if err := kv.Set(ctx, namespace, key, data); err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}
