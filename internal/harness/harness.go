package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/learning"
	"github.com/roach88/bypassd/internal/store"
)

// Harness is the test execution engine.
type Harness struct {
	store    *store.Store
	learning *learning.Store
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and write the seed
// 2. Migrate legacy keys and load the learning store
// 3. Feed every line through the parser and the learning store
// 4. Auto-lock when a threshold is set, then persist
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store:    st,
		learning: learning.New(st, learning.WithLogger(logger)),
		logger:   logger,
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.seed(ctx, scenario.Seed, result); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	h.feed(scenario.Lines, result)

	if scenario.AutoLockThreshold > 0 {
		result.AutoLocked = h.learning.AutoLockFromHistory(scenario.AutoLockThreshold)
	}
	if err := h.learning.Persist(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist: %w", err)
	}

	if locks := h.learning.Locks(); locks != nil {
		result.Locks = locks
	}
	if history := h.learning.HistoryRecords(); history != nil {
		result.History = history
	}

	actx := &AssertionContext{
		KV:       st,
		Learning: h.learning,
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// seed writes the raw entries, then migrates and loads.
func (h *Harness) seed(ctx context.Context, entries []SeedEntry, result *Result) error {
	for i, e := range entries {
		if err := h.store.Set(ctx, e.Namespace, e.Key, []byte(e.Value)); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	migrated, err := h.learning.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	result.Migrated = migrated

	if err := h.learning.Load(ctx); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

// feed applies every line the way the live reader does.
func (h *Harness) feed(lines []string, result *Result) {
	for _, line := range lines {
		ev, ok := events.Parse(line)
		if !ok {
			result.AddTrace(line, "", false, false)
			continue
		}
		ch := h.learning.Apply(ev)
		result.AddTrace(line, ev.Kind().String(), ch.LockChanged, ch.Outcome)
		h.logger.Debug("applied", "kind", ev.Kind(), "lock_changed", ch.LockChanged)
	}
}
