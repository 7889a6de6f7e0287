package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bypassd/internal/model"
)

func TestParse_SpecExamples(t *testing.T) {
	tests := []struct {
		line string
		want Event
	}{
		{
			line: "LOCKED example.com to strategy=7 [HTTP]",
			want: Locked{Domain: "example.com", Strategy: 7, Protocol: model.ProtocolHTTP},
		},
		{
			line: "LOCKED example.com to strategy=3",
			want: Locked{Domain: "example.com", Strategy: 3, Protocol: model.ProtocolTLS},
		},
		{
			line: "strategy-stats: SUCCESS example.com strategy=3 count=1 [TLS]",
			want: Success{Domain: "example.com", Strategy: 3, Protocol: model.ProtocolTLS, Count: 1},
		},
		{
			line: "NEW example.com starting",
			want: NewDomainStarted{Domain: "example.com"},
		},
		{
			line: "UNLOCKING example.com [TLS]",
			want: Unlocking{Domain: "example.com", Protocol: model.ProtocolTLS},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := Parse(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_RoundTripsEveryKind(t *testing.T) {
	samples := []Event{
		Locked{Domain: "example.com", Strategy: 7, Protocol: model.ProtocolHTTP},
		Unlocking{Domain: "example.com", Protocol: model.ProtocolHTTP},
		Sticky{Domain: "example.com", Strategy: 4},
		Unsticky{Domain: "example.com", Protocol: model.ProtocolTLS},
		Preloaded{Domain: "example.com", Strategy: 12, Protocol: model.ProtocolHTTP},
		HistorySnapshot{Domain: "example.com", Strategy: 3, Successes: 5, Failures: 1, Rate: 83},
		Success{Domain: "example.com", Strategy: 3, Protocol: model.ProtocolTLS, Count: 2},
		Success{Domain: "example.com", Strategy: 3, Protocol: model.ProtocolHTTP},
		Fail{Domain: "example.com", Strategy: 9, Protocol: model.ProtocolHTTP, Count: 4},
		CurrentStatus{Domain: "example.com", Strategy: 2, Protocol: model.ProtocolTLS, State: StateLearning},
		CurrentStatus{Domain: "example.com", Strategy: 2, Protocol: model.ProtocolHTTP, State: StateLocked},
		RstInjectionDetected{InBytes: 1234},
		NewDomainStarted{Domain: "example.com"},
	}

	seen := map[Kind]bool{}
	for _, ev := range samples {
		t.Run(ev.String(), func(t *testing.T) {
			got, ok := Parse(ev.String())
			require.True(t, ok, "line did not parse: %q", ev.String())
			assert.Equal(t, ev, got)
			assert.Equal(t, ev.Kind(), got.Kind())
		})
		seen[ev.Kind()] = true
	}

	for _, k := range Kinds() {
		assert.True(t, seen[k], "no round-trip sample for %s", k)
	}
}

func TestParse_ToleratesPrefixNoise(t *testing.T) {
	got, ok := Parse("[12:00:01.123] [AUTO] LOCKED Example.COM to strategy=5 [http]\r")
	require.True(t, ok)
	assert.Equal(t, Locked{Domain: "example.com", Strategy: 5, Protocol: model.ProtocolHTTP}, got)
}

func TestParse_DefaultsProtocolToTLS(t *testing.T) {
	got, ok := Parse("UNSTICKY example.com")
	require.True(t, ok)
	assert.Equal(t, Unsticky{Domain: "example.com", Protocol: model.ProtocolTLS}, got)

	got, ok = Parse("PRELOADED example.com strategy=2")
	require.True(t, ok)
	assert.Equal(t, Preloaded{Domain: "example.com", Strategy: 2, Protocol: model.ProtocolTLS}, got)
}

func TestParse_StickyIsNotUnsticky(t *testing.T) {
	got, ok := Parse("UNSTICKY example.com [HTTP]")
	require.True(t, ok)
	assert.Equal(t, KindUnsticky, got.Kind())

	got, ok = Parse("STICKY example.com to strategy=4")
	require.True(t, ok)
	assert.Equal(t, KindSticky, got.Kind())
}

func TestParse_CurrentLockedIsNotALock(t *testing.T) {
	got, ok := Parse("CURRENT example.com strategy=3 state=LOCKED")
	require.True(t, ok)
	assert.Equal(t, CurrentStatus{
		Domain:   "example.com",
		Strategy: 3,
		Protocol: model.ProtocolTLS,
		State:    StateLocked,
	}, got)
}

func TestParse_HistoryWithoutRateComputesIt(t *testing.T) {
	got, ok := Parse("HISTORY example.com strategy=3 successes=2 failures=1")
	require.True(t, ok)
	assert.Equal(t, 67, got.(HistorySnapshot).Rate)
}

func TestParse_Unrecognized(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"nfqws2 version 2.1 starting",
		"LOCKED",
		"LOCKED example.com to strategy=abc",
		"LOCKED example.com to strategy=0",
		"strategy-stats: MAYBE example.com strategy=3",
		"HISTORY example.com strategy=3 successes=x failures=1",
		"RST injection detected",
		"UNLOCKINGexample.com",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			ev, ok := Parse(line)
			assert.False(t, ok)
			assert.Nil(t, ev)
		})
	}
}

func TestParse_OverflowingNumbersAreDropped(t *testing.T) {
	_, ok := Parse("LOCKED example.com to strategy=99999999999999999999999")
	assert.False(t, ok)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "locked", KindLocked.String())
	assert.Equal(t, "rst_injection_detected", KindRstInjectionDetected.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
	assert.Len(t, Kinds(), 11)
}

func FuzzParse(f *testing.F) {
	f.Add("LOCKED example.com to strategy=7 [HTTP]")
	f.Add("strategy-stats: FAIL x strategy=1 count=9 [TLS]")
	f.Add("HISTORY a strategy=1 successes=1 failures=1 rate=50%")
	f.Add("\x00\xff[")
	f.Fuzz(func(t *testing.T, line string) {
		ev, ok := Parse(line)
		if ok && ev == nil {
			t.Fatalf("Parse(%q) returned ok with nil event", line)
		}
	})
}
