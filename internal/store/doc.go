// Package store provides durable key-value persistence for bypassd.
//
// Everything the learning engine remembers lives in a handful of namespaces,
// one key per domain:
//   - tls-locks:  domain -> strategy number
//   - http-locks: domain -> strategy number
//   - history:    domain -> compact JSON {strategy: {s, f}}
//   - root:       whitelist and the legacy single-blob keys
//
// Writing one key per domain keeps a single change cheap and independent of
// every other domain: a crash in the middle of a flush can lose at most the
// key being written.
//
// Two adapters implement KV:
//   - Store: SQLite (WAL mode), used by the daemon and CLI
//   - Memory: in-process map, used by tests and dry runs
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Schema versions are tracked with PRAGMA user_version.
package store
