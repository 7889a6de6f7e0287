// Package whitelist manages the domains the engine must never touch.
//
// The registry is the union of a code-defined default set, which cannot be
// changed at runtime, and a user set persisted as a JSON array under
// root/whitelist. GenerateExclusionFile renders the union for the engine's
// exclusion flag.
package whitelist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

// Key is the root-namespace key holding the user set.
const Key = "whitelist"

// defaultDomains are services that work without bypass and break when
// packets are mangled (banking, government portals, domestic CDNs).
var defaultDomains = []string{
	"vk.com",
	"vk.ru",
	"userapi.com",
	"ok.ru",
	"mail.ru",
	"ya.ru",
	"yandex.ru",
	"yandex.net",
	"yastatic.net",
	"gosuslugi.ru",
	"nalog.gov.ru",
	"sberbank.ru",
	"tbank.ru",
	"vtb.ru",
	"mos.ru",
	"ozon.ru",
	"wildberries.ru",
	"avito.ru",
	"localhost",
}

// DefaultDomains returns a copy of the built-in set, sorted.
func DefaultDomains() []string {
	out := make([]string, len(defaultDomains))
	copy(out, defaultDomains)
	sort.Strings(out)
	return out
}

var defaultSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(defaultDomains))
	for _, d := range defaultDomains {
		m[model.NormalizeDomain(d)] = struct{}{}
	}
	return m
}()

// Registry is the default set plus the persisted user set.
// Safe for concurrent use.
type Registry struct {
	kv store.KV

	mu   sync.Mutex
	user map[string]struct{}
}

// New creates a registry with an empty user set. Call Load to read the
// persisted one.
func New(kv store.KV) *Registry {
	return &Registry{kv: kv, user: make(map[string]struct{})}
}

// Load reads the user set from the store. A missing key means empty.
func (r *Registry) Load(ctx context.Context) error {
	raw, err := r.kv.Get(ctx, store.NamespaceRoot, Key)
	if errors.Is(err, store.ErrNotFound) {
		r.mu.Lock()
		r.user = make(map[string]struct{})
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}
	user := make(map[string]struct{}, len(list))
	for _, d := range list {
		if d = model.NormalizeDomain(d); d != "" {
			user[d] = struct{}{}
		}
	}

	r.mu.Lock()
	r.user = user
	r.mu.Unlock()
	return nil
}

// IsDefault reports whether domain is in the built-in set.
func (r *Registry) IsDefault(domain string) bool {
	_, ok := defaultSet[model.NormalizeDomain(domain)]
	return ok
}

// Contains reports whether domain is excluded by either set.
func (r *Registry) Contains(domain string) bool {
	d := model.NormalizeDomain(domain)
	if _, ok := defaultSet[d]; ok {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.user[d]
	return ok
}

// Add adds domain to the user set and persists it. Returns false without
// changing anything when the domain is blank or already excluded.
func (r *Registry) Add(ctx context.Context, domain string) (bool, error) {
	d := model.NormalizeDomain(domain)
	if d == "" || r.IsDefault(d) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.user[d]; ok {
		return false, nil
	}
	r.user[d] = struct{}{}
	if err := r.persistLocked(ctx); err != nil {
		delete(r.user, d)
		return false, err
	}
	return true, nil
}

// Remove deletes domain from the user set and persists it. Default domains
// cannot be removed; Remove returns false for them and for unknown domains.
func (r *Registry) Remove(ctx context.Context, domain string) (bool, error) {
	d := model.NormalizeDomain(domain)
	if r.IsDefault(d) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.user[d]; !ok {
		return false, nil
	}
	delete(r.user, d)
	if err := r.persistLocked(ctx); err != nil {
		r.user[d] = struct{}{}
		return false, err
	}
	return true, nil
}

// UserDomains returns the user set, sorted.
func (r *Registry) UserDomains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.user)
}

// All returns the sorted union of both sets.
func (r *Registry) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	union := make(map[string]struct{}, len(defaultSet)+len(r.user))
	for d := range defaultSet {
		union[d] = struct{}{}
	}
	for d := range r.user {
		union[d] = struct{}{}
	}
	return sortedKeys(union)
}

// GenerateExclusionFile writes the union, one domain per line, sorted,
// with a trailing newline.
func (r *Registry) GenerateExclusionFile(path string) error {
	data := []byte(strings.Join(r.All(), "\n") + "\n")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write exclusion file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write exclusion file: %w", err)
	}
	return nil
}

func (r *Registry) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(sortedKeys(r.user))
	if err != nil {
		return fmt.Errorf("persist whitelist: %w", err)
	}
	if err := r.kv.Set(ctx, store.NamespaceRoot, Key, data); err != nil {
		return fmt.Errorf("persist whitelist: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
