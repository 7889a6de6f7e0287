package learning

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

// Legacy single-blob keys in the root namespace.
const (
	LegacyTLSLocksKey  = "learned-strategies-tls"
	LegacyHTTPLocksKey = "learned-strategies-http"
	LegacyHistoryKey   = "strategy-history"
)

// Migrate fans the legacy blobs out into per-domain keys and deletes them.
//
// The legacy blobs are JSON objects:
//
//	learned-strategies-tls:  {"example.com": 3, ...}
//	strategy-history:        {"example.com": {"3": {"successes": 5, "failures": 1}}}
//
// Values are read leniently (numbers may be quoted, counters may be
// {"s":..,"f":..} or [s, f]). A key already present in the new layout is
// never overwritten. Legacy keys are deleted only after their contents are
// written, so an interrupted migration simply runs again.
//
// Returns true if any legacy key was found. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) (bool, error) {
	found := false

	steps := []struct {
		key     string
		migrate func(context.Context, gjson.Result) (int, error)
	}{
		{LegacyTLSLocksKey, func(ctx context.Context, r gjson.Result) (int, error) {
			return s.migrateLocks(ctx, store.NamespaceTLSLocks, r)
		}},
		{LegacyHTTPLocksKey, func(ctx context.Context, r gjson.Result) (int, error) {
			return s.migrateLocks(ctx, store.NamespaceHTTPLocks, r)
		}},
		{LegacyHistoryKey, s.migrateHistory},
	}

	for _, step := range steps {
		raw, err := s.kv.Get(ctx, store.NamespaceRoot, step.key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return found, fmt.Errorf("migrate %s: %w", step.key, err)
		}
		found = true

		if gjson.ValidBytes(raw) {
			n, err := step.migrate(ctx, gjson.ParseBytes(raw))
			if err != nil {
				return found, fmt.Errorf("migrate %s: %w", step.key, err)
			}
			s.logger.Info("migrated legacy blob", "key", step.key, "domains", n)
		} else {
			s.logger.Warn("discarding unreadable legacy blob", "key", step.key, "bytes", len(raw))
		}

		if err := s.kv.Delete(ctx, store.NamespaceRoot, step.key); err != nil {
			return found, fmt.Errorf("migrate %s: delete legacy key: %w", step.key, err)
		}
	}
	return found, nil
}

func (s *Store) migrateLocks(ctx context.Context, namespace string, blob gjson.Result) (int, error) {
	migrated := 0
	var ferr error
	blob.ForEach(func(k, v gjson.Result) bool {
		domain := model.NormalizeDomain(k.String())
		n := int(v.Int())
		if domain == "" || n <= 0 {
			return true
		}
		wrote, err := s.setIfAbsent(ctx, namespace, domain, []byte(strconv.Itoa(n)))
		if err != nil {
			ferr = err
			return false
		}
		if wrote {
			migrated++
		}
		return true
	})
	return migrated, ferr
}

func (s *Store) migrateHistory(ctx context.Context, blob gjson.Result) (int, error) {
	migrated := 0
	var ferr error
	blob.ForEach(func(k, v gjson.Result) bool {
		domain := model.NormalizeDomain(k.String())
		if domain == "" {
			return true
		}
		h := make(model.HistoryEntry)
		v.ForEach(func(sk, sv gjson.Result) bool {
			n, err := strconv.Atoi(sk.String())
			if err != nil || n <= 0 {
				return true
			}
			c := legacyCounters(sv)
			if c.Successes >= 0 && c.Failures >= 0 {
				h[n] = c
			}
			return true
		})
		if len(h) == 0 {
			return true
		}
		data, err := encodeHistory(h)
		if err != nil {
			ferr = err
			return false
		}
		wrote, err := s.setIfAbsent(ctx, store.NamespaceHistory, domain, data)
		if err != nil {
			ferr = err
			return false
		}
		if wrote {
			migrated++
		}
		return true
	})
	return migrated, ferr
}

func legacyCounters(v gjson.Result) model.Counters {
	if v.IsArray() {
		arr := v.Array()
		var c model.Counters
		if len(arr) > 0 {
			c.Successes = int(arr[0].Int())
		}
		if len(arr) > 1 {
			c.Failures = int(arr[1].Int())
		}
		return c
	}
	return model.Counters{
		Successes: int(firstOf(v, "successes", "s").Int()),
		Failures:  int(firstOf(v, "failures", "f").Int()),
	}
}

func firstOf(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func (s *Store) setIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error) {
	_, err := s.kv.Get(ctx, namespace, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err := s.kv.Set(ctx, namespace, key, value); err != nil {
		return false, err
	}
	return true, nil
}
