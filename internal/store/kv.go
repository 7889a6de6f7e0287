package store

import (
	"context"
	"errors"
)

// Namespaces used by the learning engine.
const (
	NamespaceTLSLocks  = "tls-locks"
	NamespaceHTTPLocks = "http-locks"
	NamespaceHistory   = "history"
	NamespaceRoot      = "root"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is namespaced key-value persistence.
//
// Every method is safe for concurrent use. Set and Delete are atomic per key.
type KV interface {
	// Get returns the value stored under namespace/key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set creates or replaces namespace/key.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes namespace/key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Enumerate returns every key/value pair in the namespace.
	// Returns an empty (non-nil) map for an empty namespace.
	Enumerate(ctx context.Context, namespace string) (map[string][]byte, error)

	// DeleteAll removes every key in the namespace.
	DeleteAll(ctx context.Context, namespace string) error
}
