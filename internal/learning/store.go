package learning

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

// DefaultAutoLockThreshold is the minimum success count for auto-locking.
const DefaultAutoLockThreshold = 3

type dirtyKey struct {
	namespace string
	domain    string
}

// Store is the in-memory learning state plus its persistence adapter.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized by a single mutex; Persist does its I/O without holding it.
type Store struct {
	kv     store.KV
	logger *slog.Logger

	mu      sync.Mutex
	locks   map[model.Protocol]map[string]int
	history map[string]model.HistoryEntry
	dirty   map[dirtyKey]struct{}

	// persistMu orders Persist and ClearAll against each other.
	persistMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty Store backed by kv. Call Migrate and Load to pick up
// persisted state.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
	}
	s.resetLocked()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) resetLocked() {
	s.locks = map[model.Protocol]map[string]int{
		model.ProtocolTLS:  {},
		model.ProtocolHTTP: {},
	}
	s.history = make(map[string]model.HistoryEntry)
	s.dirty = make(map[dirtyKey]struct{})
}

func lockNamespace(p model.Protocol) string {
	if p == model.ProtocolHTTP {
		return store.NamespaceHTTPLocks
	}
	return store.NamespaceTLSLocks
}

func (s *Store) markDirtyLocked(namespace, domain string) {
	s.dirty[dirtyKey{namespace: namespace, domain: domain}] = struct{}{}
}

// ApplyLocked records that the engine locked domain to strategy.
// Returns true if the stored value changed.
func (s *Store) ApplyLocked(domain string, p model.Protocol, strategy int) bool {
	domain = model.NormalizeDomain(domain)
	if domain == "" || strategy <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locks := s.locks[p]
	if locks == nil {
		return false
	}
	if cur, ok := locks[domain]; ok && cur == strategy {
		return false
	}
	locks[domain] = strategy
	s.markDirtyLocked(lockNamespace(p), domain)
	return true
}

// ApplyUnlocking clears the lock for (domain, protocol).
// Returns true if a lock was removed.
func (s *Store) ApplyUnlocking(domain string, p model.Protocol) bool {
	domain = model.NormalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	locks := s.locks[p]
	if _, ok := locks[domain]; !ok {
		return false
	}
	delete(locks, domain)
	s.markDirtyLocked(lockNamespace(p), domain)
	return true
}

// RecordOutcome increments the success or failure counter for
// (domain, strategy), creating the entry if needed. Returns the new counters.
func (s *Store) RecordOutcome(domain string, strategy int, success bool) model.Counters {
	domain = model.NormalizeDomain(domain)
	if domain == "" || strategy <= 0 {
		return model.Counters{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[domain]
	if h == nil {
		h = make(model.HistoryEntry)
		s.history[domain] = h
	}
	c := h[strategy]
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
	h[strategy] = c
	s.markDirtyLocked(store.NamespaceHistory, domain)
	return c
}

// ApplyHistorySnapshot overwrites the counters for (domain, strategy) with
// the engine's own view. Returns true if the stored value changed.
func (s *Store) ApplyHistorySnapshot(domain string, strategy, successes, failures int) bool {
	domain = model.NormalizeDomain(domain)
	if domain == "" || strategy <= 0 || successes < 0 || failures < 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := model.Counters{Successes: successes, Failures: failures}
	h := s.history[domain]
	if h == nil {
		h = make(model.HistoryEntry)
		s.history[domain] = h
	}
	if cur, ok := h[strategy]; ok && cur == want {
		return false
	}
	h[strategy] = want
	s.markDirtyLocked(store.NamespaceHistory, domain)
	return true
}

// Lock returns the locked strategy for (domain, protocol).
func (s *Store) Lock(domain string, p model.Protocol) (int, bool) {
	domain = model.NormalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.locks[p][domain]
	return n, ok
}

// Counters returns the history counters for (domain, strategy).
func (s *Store) Counters(domain string, strategy int) (model.Counters, bool) {
	domain = model.NormalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.history[domain][strategy]
	return c, ok
}

// History returns a copy of the history for one domain, or nil.
func (s *Store) History(domain string) model.HistoryEntry {
	domain = model.NormalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.history[domain]
	if !ok {
		return nil
	}
	return h.Clone()
}

// Locks returns every lock sorted by protocol then domain.
func (s *Store) Locks() []model.LockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.LockEntry
	for _, p := range model.Protocols {
		for d, n := range s.locks[p] {
			out = append(out, model.LockEntry{Domain: d, Protocol: p, Strategy: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Protocol != out[j].Protocol {
			return out[i].Protocol < out[j].Protocol
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// HistoryRecords returns every history row sorted by domain then strategy.
func (s *Store) HistoryRecords() []model.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.HistoryRecord
	for d, h := range s.history {
		for n, c := range h {
			out = append(out, model.HistoryRecord{Domain: d, Strategy: n, Counters: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// Snapshot is a deep copy of the learning state.
type Snapshot struct {
	TLSLocks  map[string]int                `json:"tls_locks"`
	HTTPLocks map[string]int                `json:"http_locks"`
	History   map[string]model.HistoryEntry `json:"history"`
}

// Snapshot returns a deep copy of all maps.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TLSLocks:  make(map[string]int, len(s.locks[model.ProtocolTLS])),
		HTTPLocks: make(map[string]int, len(s.locks[model.ProtocolHTTP])),
		History:   make(map[string]model.HistoryEntry, len(s.history)),
	}
	for d, n := range s.locks[model.ProtocolTLS] {
		snap.TLSLocks[d] = n
	}
	for d, n := range s.locks[model.ProtocolHTTP] {
		snap.HTTPLocks[d] = n
	}
	for d, h := range s.history {
		snap.History[d] = h.Clone()
	}
	return snap
}

// DirtyCount returns the number of keys waiting for Persist.
func (s *Store) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}
