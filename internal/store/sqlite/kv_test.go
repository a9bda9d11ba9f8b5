package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/relaychat/internal/store"
)

func TestKVUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	kv, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	_, err = kv.Get(ctx, store.NamespaceEntity, "private:42")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, kv.Set(ctx, store.NamespaceEntity, "private:42", []byte(`{"enabled":true}`)))
	require.NoError(t, kv.Set(ctx, store.NamespaceEntity, "private:42", []byte(`{"enabled":false}`)))

	got, err := kv.Get(ctx, store.NamespaceEntity, "private:42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled":false}`, string(got))

	require.NoError(t, kv.Delete(ctx, store.NamespaceEntity, "private:42"))
	_, err = kv.Get(ctx, store.NamespaceEntity, "private:42")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKVWorksWithTypedHelpers(t *testing.T) {
	ctx := context.Background()
	kv, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	require.NoError(t, store.Save(ctx, kv, store.NamespaceQueue, "group:-1:0", []string{"hi", "there"}))
	got, err := store.Load(ctx, kv, store.NamespaceQueue, "group:-1:0", []string(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "there"}, got)
}
