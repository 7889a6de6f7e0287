package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bypassd/internal/learning"
	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/store"
)

var sampleTrace = []TraceEvent{
	{Seq: 1, Line: "NEW a.com starting", Kind: "new_domain_started"},
	{Seq: 2, Line: "strategy-stats: FAIL a.com strategy=1 [TLS]", Kind: "fail", Outcome: true},
	{Seq: 3, Line: "banner"},
	{Seq: 4, Line: "LOCKED a.com to strategy=2", Kind: "locked", LockChanged: true},
}

func TestAssertEventCount(t *testing.T) {
	assert.NoError(t, assertEventCount(sampleTrace, Assertion{Kind: "locked", Count: 1}))
	assert.NoError(t, assertEventCount(sampleTrace, Assertion{Kind: "success", Count: 0}))

	err := assertEventCount(sampleTrace, Assertion{Kind: "fail", Count: 2})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 occurrences", ae.Actual)
}

func TestAssertEventOrder(t *testing.T) {
	assert.NoError(t, assertEventOrder(sampleTrace, Assertion{Kinds: []string{"new_domain_started", "locked"}}))

	err := assertEventOrder(sampleTrace, Assertion{Kinds: []string{"locked", "fail"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked (seq 4) should be before fail (seq 2)")

	err = assertEventOrder(sampleTrace, Assertion{Kinds: []string{"fail", "sticky"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing kind: sticky")
}

func TestAssertUnrecognized(t *testing.T) {
	assert.NoError(t, assertUnrecognized(sampleTrace, Assertion{Count: 1}))
	assert.Error(t, assertUnrecognized(sampleTrace, Assertion{Count: 0}))
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := assertEventCount(sampleTrace, Assertion{Kind: "locked", Count: 3})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: event_count")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[3] -")
	assert.Contains(t, msg, "LOCKED a.com to strategy=2")
}

func newStateContext(t *testing.T) *AssertionContext {
	t.Helper()
	kv := store.NewMemory()
	ls := learning.New(kv)
	ls.ApplyLocked("a.com", model.ProtocolHTTP, 4)
	ls.RecordOutcome("a.com", 4, true)
	ctx := context.Background()
	require.NoError(t, ls.Persist(ctx))
	return &AssertionContext{KV: kv, Learning: ls, Ctx: ctx}
}

func TestAssertLock(t *testing.T) {
	actx := newStateContext(t)

	assert.NoError(t, assertLock(actx.Learning, Assertion{Domain: "a.com", Protocol: "HTTP", Strategy: 4}))
	assert.NoError(t, assertLock(actx.Learning, Assertion{Domain: "a.com"}))
	assert.Error(t, assertLock(actx.Learning, Assertion{Domain: "a.com", Protocol: "http"}))
	assert.Error(t, assertLock(actx.Learning, Assertion{Domain: "a.com", Protocol: "HTTP", Strategy: 5}))
	assert.Error(t, assertLock(actx.Learning, Assertion{Domain: "a.com", Strategy: 4}))
}

func TestAssertCounters(t *testing.T) {
	actx := newStateContext(t)

	assert.NoError(t, assertCounters(actx.Learning, Assertion{Domain: "a.com", Strategy: 4, Successes: 1}))
	assert.NoError(t, assertCounters(actx.Learning, Assertion{Domain: "a.com", Strategy: 9}))
	assert.Error(t, assertCounters(actx.Learning, Assertion{Domain: "a.com", Strategy: 4, Failures: 1}))
}

func TestAssertPersisted(t *testing.T) {
	actx := newStateContext(t)

	assert.NoError(t, assertPersisted(actx.Ctx, actx.KV, Assertion{Namespace: "http-locks", Key: "a.com", Value: "4"}))
	assert.NoError(t, assertPersisted(actx.Ctx, actx.KV, Assertion{Namespace: "tls-locks", Key: "a.com", Absent: true}))

	err := assertPersisted(actx.Ctx, actx.KV, Assertion{Namespace: "tls-locks", Key: "a.com", Value: "4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")

	err = assertPersisted(actx.Ctx, actx.KV, Assertion{Namespace: "http-locks", Key: "a.com", Value: "5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value "4"`)
}

func TestEvaluateAssertions_NoStateContext(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertUnrecognized, Count: 1},
		{Type: AssertLock, Domain: "a.com"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "lock requires store context")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
