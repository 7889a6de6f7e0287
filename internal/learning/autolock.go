package learning

import (
	"sort"

	"github.com/roach88/bypassd/internal/model"
)

// AutoLockFromHistory locks domains the engine has not locked yet.
//
// For every domain with no lock in either protocol, the strategy with the
// most successes is locked under TLS, provided it has at least threshold
// successes. Ties go to the lower strategy number. Domains that already
// hold a lock are never touched, so running it twice changes nothing.
// A threshold <= 0 means DefaultAutoLockThreshold.
//
// Returns the locks it created, sorted by domain.
func (s *Store) AutoLockFromHistory(threshold int) []model.LockEntry {
	if threshold <= 0 {
		threshold = DefaultAutoLockThreshold
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	domains := make([]string, 0, len(s.history))
	for d := range s.history {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var created []model.LockEntry
	for _, d := range domains {
		if s.lockedAnyLocked(d) {
			continue
		}
		best, ok := bestStrategy(s.history[d], threshold)
		if !ok {
			continue
		}
		s.locks[model.ProtocolTLS][d] = best
		s.markDirtyLocked(lockNamespace(model.ProtocolTLS), d)
		created = append(created, model.LockEntry{Domain: d, Protocol: model.ProtocolTLS, Strategy: best})
	}
	return created
}

func (s *Store) lockedAnyLocked(domain string) bool {
	for _, p := range model.Protocols {
		if _, ok := s.locks[p][domain]; ok {
			return true
		}
	}
	return false
}

func bestStrategy(h model.HistoryEntry, threshold int) (int, bool) {
	best, bestSuccesses := 0, -1
	for n, c := range h {
		if c.Successes < threshold {
			continue
		}
		if c.Successes > bestSuccesses || (c.Successes == bestSuccesses && n < best) {
			best, bestSuccesses = n, c.Successes
		}
	}
	return best, best > 0
}
