package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

// counterJSON is the compact per-strategy history encoding.
type counterJSON struct {
	S int `json:"s"`
	F int `json:"f"`
}

// encodeHistory renders {"3":{"s":1,"f":0},...}. encoding/json sorts map
// keys, so identical history always encodes identically.
func encodeHistory(h model.HistoryEntry) ([]byte, error) {
	m := make(map[string]counterJSON, len(h))
	for n, c := range h {
		m[strconv.Itoa(n)] = counterJSON{S: c.Successes, F: c.Failures}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

func decodeHistory(data []byte) (model.HistoryEntry, error) {
	var m map[string]counterJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	h := make(model.HistoryEntry, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("decode history: bad strategy %q", k)
		}
		h[n] = model.Counters{Successes: v.S, Failures: v.F}
	}
	return h, nil
}

func decodeStrategy(data []byte) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad strategy value %q", data)
	}
	return n, nil
}

type pendingWrite struct {
	key    dirtyKey
	value  []byte
	delete bool
}

// Persist writes every dirty key. It holds the data mutex only while
// snapshotting, so events keep flowing during the I/O. Keys that fail to
// write stay dirty for the next call; the joined write errors are returned.
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	writes, err := s.takeDirty()
	if err != nil {
		return err
	}

	var errs []error
	for _, w := range writes {
		var werr error
		if w.delete {
			werr = s.kv.Delete(ctx, w.key.namespace, w.key.domain)
		} else {
			werr = s.kv.Set(ctx, w.key.namespace, w.key.domain, w.value)
		}
		if werr != nil {
			errs = append(errs, werr)
			s.mu.Lock()
			s.markDirtyLocked(w.key.namespace, w.key.domain)
			s.mu.Unlock()
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("persist incomplete, will retry",
			"failed", len(errs), "total", len(writes), "error", errs[0])
	}
	return errors.Join(errs...)
}

// takeDirty snapshots and clears the dirty set under the data mutex.
func (s *Store) takeDirty() ([]pendingWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writes := make([]pendingWrite, 0, len(s.dirty))
	for k := range s.dirty {
		w := pendingWrite{key: k}
		switch k.namespace {
		case store.NamespaceTLSLocks, store.NamespaceHTTPLocks:
			p := model.ProtocolTLS
			if k.namespace == store.NamespaceHTTPLocks {
				p = model.ProtocolHTTP
			}
			if n, ok := s.locks[p][k.domain]; ok {
				w.value = []byte(strconv.Itoa(n))
			} else {
				w.delete = true
			}
		case store.NamespaceHistory:
			h, ok := s.history[k.domain]
			if !ok || len(h) == 0 {
				w.delete = true
				break
			}
			data, err := encodeHistory(h)
			if err != nil {
				return nil, err
			}
			w.value = data
		}
		writes = append(writes, w)
	}
	s.dirty = make(map[dirtyKey]struct{})

	sort.Slice(writes, func(i, j int) bool {
		if writes[i].key.namespace != writes[j].key.namespace {
			return writes[i].key.namespace < writes[j].key.namespace
		}
		return writes[i].key.domain < writes[j].key.domain
	})
	return writes, nil
}

// Load replaces the in-memory state with what is persisted. Malformed
// values are skipped with a warning rather than failing the whole load.
func (s *Store) Load(ctx context.Context) error {
	tls, err := s.loadLocks(ctx, store.NamespaceTLSLocks)
	if err != nil {
		return err
	}
	http, err := s.loadLocks(ctx, store.NamespaceHTTPLocks)
	if err != nil {
		return err
	}

	raw, err := s.kv.Enumerate(ctx, store.NamespaceHistory)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	history := make(map[string]model.HistoryEntry, len(raw))
	for d, v := range raw {
		h, err := decodeHistory(v)
		if err != nil {
			s.logger.Warn("skipping malformed history", "domain", d, "error", err)
			continue
		}
		if len(h) > 0 {
			history[model.NormalizeDomain(d)] = h
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = map[model.Protocol]map[string]int{
		model.ProtocolTLS:  tls,
		model.ProtocolHTTP: http,
	}
	s.history = history
	s.dirty = make(map[dirtyKey]struct{})
	return nil
}

func (s *Store) loadLocks(ctx context.Context, namespace string) (map[string]int, error) {
	raw, err := s.kv.Enumerate(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", namespace, err)
	}
	out := make(map[string]int, len(raw))
	for d, v := range raw {
		n, err := decodeStrategy(v)
		if err != nil {
			s.logger.Warn("skipping malformed lock", "namespace", namespace, "domain", d, "error", err)
			continue
		}
		out[model.NormalizeDomain(d)] = n
	}
	return out, nil
}

// ClearAll forgets everything: in-memory maps and all three namespaces.
func (s *Store) ClearAll(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	for _, ns := range []string{store.NamespaceTLSLocks, store.NamespaceHTTPLocks, store.NamespaceHistory} {
		if err := s.kv.DeleteAll(ctx, ns); err != nil {
			return fmt.Errorf("clear %s: %w", ns, err)
		}
	}
	return nil
}
