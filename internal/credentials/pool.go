// Package credentials holds the process-wide rotating pool of generation API keys.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/relaychat/internal/store"
)

var (
	ErrNoCredentials = errors.New("credentials: pool is empty")
	ErrDuplicateKey  = errors.New("credentials: key already in pool")
	ErrOutOfRange    = errors.New("credentials: position out of range")
)

const poolKey = "pool"

type state struct {
	Keys  []string `json:"keys"`
	Index int      `json:"key_index"`
}

// Pool is safe for concurrent use. Every mutation is persisted before the lock is released,
// so the stored cursor never runs ahead of or behind the in-memory one.
type Pool struct {
	kv store.KV
	mu sync.Mutex
	st state
}

// Load restores the pool from kv.
func Load(ctx context.Context, kv store.KV) (*Pool, error) {
	st, err := store.Load(ctx, kv, store.NamespaceCredentials, poolKey, state{})
	if err != nil {
		return nil, fmt.Errorf("load credential pool: %w", err)
	}
	return &Pool{kv: kv, st: st}, nil
}

func (p *Pool) save(ctx context.Context) error {
	return store.Save(ctx, p.kv, store.NamespaceCredentials, poolKey, p.st)
}

// Len returns the number of keys.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.st.Keys)
}

// Current returns the cursor and the key it points at. An out-of-range cursor
// (the pool shrank) is reset to 0 and persisted.
func (p *Pool) Current(ctx context.Context) (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.st.Keys) == 0 {
		return 0, "", ErrNoCredentials
	}
	if p.st.Index < 0 || p.st.Index >= len(p.st.Keys) {
		p.st.Index = 0
		if err := p.save(ctx); err != nil {
			return 0, "", err
		}
	}
	return p.st.Index, p.st.Keys[p.st.Index], nil
}

// Advance moves the cursor to (from+1) mod len, but only if it still points at from.
// When another caller already rotated away from from, the cursor is left alone.
// It returns the cursor after the call.
func (p *Pool) Advance(ctx context.Context, from int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.st.Keys)
	if n == 0 {
		return 0, ErrNoCredentials
	}
	if p.st.Index != from {
		return p.st.Index, nil
	}
	p.st.Index = (from + 1) % n
	if err := p.save(ctx); err != nil {
		return p.st.Index, err
	}
	return p.st.Index, nil
}

// Add appends key to the end of the pool.
func (p *Pool) Add(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.st.Keys {
		if k == key {
			return ErrDuplicateKey
		}
	}
	p.st.Keys = append(p.st.Keys, key)
	return p.save(ctx)
}

// Seed adds each key not already present. Used for keys supplied via config/env.
func (p *Pool) Seed(ctx context.Context, keys []string) (int, error) {
	added := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		err := p.Add(ctx, k)
		if errors.Is(err, ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Remove deletes the key at pos and clamps the cursor if it fell off the end.
func (p *Pool) Remove(ctx context.Context, pos int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos < 0 || pos >= len(p.st.Keys) {
		return "", ErrOutOfRange
	}
	removed := p.st.Keys[pos]
	p.st.Keys = append(p.st.Keys[:pos:pos], p.st.Keys[pos+1:]...)
	if p.st.Index >= len(p.st.Keys) {
		p.st.Index = max(0, len(p.st.Keys)-1)
	}
	return removed, p.save(ctx)
}

// Select points the cursor at pos.
func (p *Pool) Select(ctx context.Context, pos int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos < 0 || pos >= len(p.st.Keys) {
		return ErrOutOfRange
	}
	p.st.Index = pos
	return p.save(ctx)
}

// List returns a copy of the keys and the cursor.
func (p *Pool) List() ([]string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.st.Keys...), p.st.Index
}

// Mask hides all but the edges of a key for display.
func Mask(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
