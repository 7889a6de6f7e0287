// Package learning tracks what the engine has learned per domain.
//
// The Store holds three in-memory maps guarded by one mutex:
//   - TLS locks:  domain -> strategy
//   - HTTP locks: domain -> strategy
//   - history:    domain -> strategy -> {successes, failures}
//
// Locks mirror the engine's own decisions; the Store never invents one except
// through AutoLockFromHistory, which only fills domains that have no lock at
// all. History is keyed by (domain, strategy) and deliberately not split by
// protocol, matching how the engine reports it.
//
// # Persistence
//
// Every mutation marks one (namespace, domain) key dirty. Persist snapshots
// the dirty keys under the mutex, releases it, then writes each key on its
// own through store.KV. Keys that fail to write are marked dirty again and
// retried by the next Persist, so an I/O error never loses a change and never
// blocks event application.
//
// Migrate converts the legacy single-blob layout into per-domain keys and is
// safe to run on every start.
package learning
