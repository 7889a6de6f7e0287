package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

func seedLegacy(t *testing.T, kv store.KV) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, store.NamespaceRoot, LegacyTLSLocksKey,
		[]byte(`{"Example.com": 3, "quoted.org": "5", "zero.net": 0}`)))
	require.NoError(t, kv.Set(ctx, store.NamespaceRoot, LegacyHTTPLocksKey,
		[]byte(`{"plain.example": 2}`)))
	require.NoError(t, kv.Set(ctx, store.NamespaceRoot, LegacyHistoryKey,
		[]byte(`{
			"example.com": {"3": {"successes": 5, "failures": 1}, "7": [0, 4]},
			"short.io": {"2": {"s": 1, "f": 0}},
			"junk.com": {"x": {"successes": 1}}
		}`)))
}

func TestMigrate_FansOutLegacyBlobs(t *testing.T) {
	kv := store.NewMemory()
	seedLegacy(t, kv)
	ctx := context.Background()

	s := New(kv)
	migrated, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)

	require.NoError(t, s.Load(ctx))
	snap := s.Snapshot()
	assert.Equal(t, map[string]int{"example.com": 3, "quoted.org": 5}, snap.TLSLocks)
	assert.Equal(t, map[string]int{"plain.example": 2}, snap.HTTPLocks)
	assert.Equal(t, map[string]model.HistoryEntry{
		"example.com": {3: {Successes: 5, Failures: 1}, 7: {Successes: 0, Failures: 4}},
		"short.io":    {2: {Successes: 1}},
	}, snap.History)

	for _, key := range []string{LegacyTLSLocksKey, LegacyHTTPLocksKey, LegacyHistoryKey} {
		_, err := kv.Get(ctx, store.NamespaceRoot, key)
		assert.ErrorIs(t, err, store.ErrNotFound, key)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	kv := store.NewMemory()
	seedLegacy(t, kv)
	ctx := context.Background()
	s := New(kv)

	_, err := s.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Load(ctx))
	first := s.Snapshot()

	migrated, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, first, s.Snapshot())
}

func TestMigrate_NoLegacyKeysIsNoop(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, store.NamespaceTLSLocks, "a.com", []byte("1")))

	s := New(kv)
	migrated, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.Equal(t, 1, kv.SetCalls())
}

func TestMigrate_DoesNotOverwriteNewLayout(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, store.NamespaceTLSLocks, "example.com", []byte("9")))
	require.NoError(t, kv.Set(ctx, store.NamespaceRoot, LegacyTLSLocksKey, []byte(`{"example.com": 3}`)))

	s := New(kv)
	_, err := s.Migrate(ctx)
	require.NoError(t, err)

	v, err := kv.Get(ctx, store.NamespaceTLSLocks, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "9", string(v))
}

func TestMigrate_DiscardsUnreadableBlob(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, store.NamespaceRoot, LegacyHistoryKey, []byte(`{broken`)))

	s := New(kv)
	migrated, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)

	_, err = kv.Get(ctx, store.NamespaceRoot, LegacyHistoryKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
