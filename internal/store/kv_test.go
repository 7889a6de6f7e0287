package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV_GetMissing(t *testing.T) {
	for name, kv := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(context.Background(), NamespaceTLSLocks, "missing.com")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestKV_SetGetOverwrite(t *testing.T) {
	for name, kv := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, kv.Set(ctx, NamespaceTLSLocks, "example.com", []byte("3")))
			require.NoError(t, kv.Set(ctx, NamespaceTLSLocks, "example.com", []byte("5")))

			v, err := kv.Get(ctx, NamespaceTLSLocks, "example.com")
			require.NoError(t, err)
			assert.Equal(t, "5", string(v))
		})
	}
}

func TestKV_NamespacesAreIndependent(t *testing.T) {
	for name, kv := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, kv.Set(ctx, NamespaceTLSLocks, "example.com", []byte("3")))
			require.NoError(t, kv.Set(ctx, NamespaceHTTPLocks, "example.com", []byte("9")))

			require.NoError(t, kv.DeleteAll(ctx, NamespaceTLSLocks))

			_, err := kv.Get(ctx, NamespaceTLSLocks, "example.com")
			assert.ErrorIs(t, err, ErrNotFound)

			v, err := kv.Get(ctx, NamespaceHTTPLocks, "example.com")
			require.NoError(t, err)
			assert.Equal(t, "9", string(v))
		})
	}
}

func TestKV_Enumerate(t *testing.T) {
	for name, kv := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := kv.Enumerate(ctx, NamespaceHistory)
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			require.NoError(t, kv.Set(ctx, NamespaceHistory, "b.com", []byte("2")))
			require.NoError(t, kv.Set(ctx, NamespaceHistory, "a.com", []byte("1")))
			require.NoError(t, kv.Set(ctx, NamespaceRoot, "whitelist", []byte("[]")))

			got, err := kv.Enumerate(ctx, NamespaceHistory)
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{
				"a.com": []byte("1"),
				"b.com": []byte("2"),
			}, got)
		})
	}
}

func TestKV_DeleteMissingIsNotError(t *testing.T) {
	for name, kv := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.NoError(t, kv.Delete(ctx, NamespaceRoot, "never-set"))

			require.NoError(t, kv.Set(ctx, NamespaceRoot, "k", []byte("v")))
			require.NoError(t, kv.Delete(ctx, NamespaceRoot, "k"))
			_, err := kv.Get(ctx, NamespaceRoot, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemory_FailWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("disk full")

	m.FailWrites(boom)
	assert.ErrorIs(t, m.Set(ctx, NamespaceRoot, "k", []byte("v")), boom)
	assert.ErrorIs(t, m.Delete(ctx, NamespaceRoot, "k"), boom)
	assert.ErrorIs(t, m.DeleteAll(ctx, NamespaceRoot), boom)
	assert.Equal(t, 1, m.SetCalls())

	m.FailWrites(nil)
	require.NoError(t, m.Set(ctx, NamespaceRoot, "k", []byte("v")))
	assert.Equal(t, 2, m.SetCalls())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, NamespaceRoot, "k", buf))
	buf[0] = 'z'

	v, err := m.Get(ctx, NamespaceRoot, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}
