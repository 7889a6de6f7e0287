package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/bypassd/internal/learning"
	"github.com/roach88/bypassd/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			kind := event.Kind
			if kind == "" {
				kind = "-"
			}
			fmt.Fprintf(&buf, "  [%d] %-22s %s\n", event.Seq, kind, event.Line)
		}
	}
	return buf.String()
}

// AssertionContext gives state assertions access to the run's stores.
type AssertionContext struct {
	KV       store.KV
	Learning *learning.Store
	Ctx      context.Context
}

// assertEventCount checks that kind appears exactly Count times.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventOrder checks that the first occurrence of each kind follows
// the previous one. Intervening events are allowed.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if event.Kind == "" {
			continue
		}
		if _, ok := positions[event.Kind]; !ok {
			positions[event.Kind] = event.Seq
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertUnrecognized(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if !event.Recognized() {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertUnrecognized,
			Expected: fmt.Sprintf("%d unrecognized lines", a.Count),
			Actual:   fmt.Sprintf("%d unrecognized lines", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertLock checks the in-memory lock for (domain, protocol).
func assertLock(ls *learning.Store, a Assertion) error {
	p, err := assertionProtocol(&a)
	if err != nil {
		return err
	}
	got, ok := ls.Lock(a.Domain, p)

	switch {
	case a.Strategy == 0 && ok:
		return &AssertionError{
			Type:     AssertLock,
			Expected: fmt.Sprintf("%s [%s] unlocked", a.Domain, p),
			Actual:   fmt.Sprintf("locked to strategy=%d", got),
		}
	case a.Strategy > 0 && !ok:
		return &AssertionError{
			Type:     AssertLock,
			Expected: fmt.Sprintf("%s [%s] locked to strategy=%d", a.Domain, p, a.Strategy),
			Actual:   "no lock",
		}
	case a.Strategy > 0 && got != a.Strategy:
		return &AssertionError{
			Type:     AssertLock,
			Expected: fmt.Sprintf("%s [%s] locked to strategy=%d", a.Domain, p, a.Strategy),
			Actual:   fmt.Sprintf("locked to strategy=%d", got),
		}
	}
	return nil
}

// assertCounters checks the history counters for (domain, strategy).
// Expecting zero successes and failures also accepts a missing entry.
func assertCounters(ls *learning.Store, a Assertion) error {
	c, _ := ls.Counters(a.Domain, a.Strategy)
	if c.Successes != a.Successes || c.Failures != a.Failures {
		return &AssertionError{
			Type:     AssertCounters,
			Expected: fmt.Sprintf("%s strategy=%d successes=%d failures=%d", a.Domain, a.Strategy, a.Successes, a.Failures),
			Actual:   fmt.Sprintf("successes=%d failures=%d", c.Successes, c.Failures),
		}
	}
	return nil
}

// assertPersisted reads the key back from the database.
func assertPersisted(ctx context.Context, kv store.KV, a Assertion) error {
	raw, err := kv.Get(ctx, a.Namespace, a.Key)
	notFound := errors.Is(err, store.ErrNotFound)
	if err != nil && !notFound {
		return fmt.Errorf("persisted %s/%s: %w", a.Namespace, a.Key, err)
	}

	where := a.Namespace + "/" + a.Key
	if a.Absent {
		if !notFound {
			return &AssertionError{
				Type:     AssertPersisted,
				Expected: where + " absent",
				Actual:   fmt.Sprintf("value %q", raw),
			}
		}
		return nil
	}
	if notFound {
		return &AssertionError{
			Type:     AssertPersisted,
			Expected: fmt.Sprintf("%s = %q", where, a.Value),
			Actual:   "absent",
		}
	}
	if string(raw) != a.Value {
		return &AssertionError{
			Type:     AssertPersisted,
			Expected: fmt.Sprintf("%s = %q", where, a.Value),
			Actual:   fmt.Sprintf("value %q", raw),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// State assertions need actx; they fail cleanly when it is nil.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertUnrecognized:
			err = assertUnrecognized(result.Trace, a)
		case AssertLock, AssertCounters, AssertPersisted:
			err = evaluateState(i, a, actx)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateState(i int, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Learning == nil || actx.KV == nil {
		return fmt.Errorf("assertion[%d]: %s requires store context", i, a.Type)
	}
	switch a.Type {
	case AssertLock:
		return assertLock(actx.Learning, a)
	case AssertCounters:
		return assertCounters(actx.Learning, a)
	default:
		ctx := actx.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		return assertPersisted(ctx, actx.KV, a)
	}
}
