package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Keys  []string `json:"keys"`
	Index int      `json:"index"`
}

func TestLoadReturnsDefaultOnMiss(t *testing.T) {
	kv := NewMemoryKV()
	got, err := Load(context.Background(), kv, NamespaceCredentials, "pool", sample{Index: -1})
	require.NoError(t, err)
	assert.Equal(t, -1, got.Index)
	assert.Nil(t, got.Keys)
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, Save(ctx, kv, NamespaceCredentials, "pool", sample{Keys: []string{"a", "b"}, Index: 1}))
	got, err := Load(ctx, kv, NamespaceCredentials, "pool", sample{})
	require.NoError(t, err)
	assert.Equal(t, sample{Keys: []string{"a", "b"}, Index: 1}, got)

	require.NoError(t, kv.Delete(ctx, NamespaceCredentials, "pool"))
	_, err = kv.Get(ctx, NamespaceCredentials, "pool")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadDecodeError(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, NamespaceQueue, "x", []byte(`{"not":"a list"}`)))

	_, err := Load(ctx, kv, NamespaceQueue, "x", []string(nil))
	assert.Error(t, err)
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	buf := []byte(`"one"`)
	require.NoError(t, kv.Set(ctx, NamespaceHistory, "k", buf))
	buf[1] = 'X'

	got, err := kv.Get(ctx, NamespaceHistory, "k")
	require.NoError(t, err)
	assert.Equal(t, `"one"`, string(got))
}
