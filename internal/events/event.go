package events

import (
	"fmt"

	"github.com/roach88/bypassd/internal/model"
)

// Kind distinguishes event variants.
type Kind int

const (
	KindLocked Kind = iota + 1
	KindUnlocking
	KindSticky
	KindPreloaded
	KindHistorySnapshot
	KindSuccess
	KindFail
	KindCurrentStatus
	KindRstInjectionDetected
	KindNewDomainStarted
	KindUnsticky
)

var kindNames = map[Kind]string{
	KindLocked:               "locked",
	KindUnlocking:            "unlocking",
	KindSticky:               "sticky",
	KindPreloaded:            "preloaded",
	KindHistorySnapshot:      "history_snapshot",
	KindSuccess:              "success",
	KindFail:                 "fail",
	KindCurrentStatus:        "current_status",
	KindRstInjectionDetected: "rst_injection_detected",
	KindNewDomainStarted:     "new_domain_started",
	KindUnsticky:             "unsticky",
}

// Kinds lists every event kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindLocked; k <= KindUnsticky; k++ {
		out = append(out, k)
	}
	return out
}

// String returns the snake_case kind name used in logs and metrics labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one classified engine output line.
// The set of implementations is closed to this package.
type Event interface {
	Kind() Kind
	// String renders the canonical engine line for the event.
	String() string
	isEvent()
}

// LearningState is the engine's view of a domain in CurrentStatus lines.
type LearningState string

const (
	StateLearning LearningState = "LEARNING"
	StateLocked   LearningState = "LOCKED"
)

// Locked: the engine durably committed to a strategy.
type Locked struct {
	Domain   string
	Strategy int
	Protocol model.Protocol
}

// Unlocking: the engine dropped its lock for a domain.
type Unlocking struct {
	Domain   string
	Protocol model.Protocol
}

// Sticky: first success, not yet durable.
type Sticky struct {
	Domain   string
	Strategy int
}

// Unsticky reverts Sticky. It is not a full unlock.
type Unsticky struct {
	Domain   string
	Protocol model.Protocol
}

// Preloaded echoes a preloaded strategy at engine startup.
type Preloaded struct {
	Domain   string
	Strategy int
	Protocol model.Protocol
}

// HistorySnapshot carries the engine's own counters for a strategy.
type HistorySnapshot struct {
	Domain    string
	Strategy  int
	Successes int
	Failures  int
	Rate      int
}

// Success records one successful connection with a strategy.
// Count is the engine's running counter when present, informational only.
type Success struct {
	Domain   string
	Strategy int
	Protocol model.Protocol
	Count    int
}

// Fail records one failed connection with a strategy.
type Fail struct {
	Domain   string
	Strategy int
	Protocol model.Protocol
	Count    int
}

// CurrentStatus reports what the engine is doing with a domain.
type CurrentStatus struct {
	Domain   string
	Strategy int
	Protocol model.Protocol
	State    LearningState
}

// RstInjectionDetected reports a forged TCP RST from the censor.
type RstInjectionDetected struct {
	InBytes int
}

// NewDomainStarted reports the first connection to an unknown domain.
type NewDomainStarted struct {
	Domain string
}

func (Locked) Kind() Kind               { return KindLocked }
func (Unlocking) Kind() Kind            { return KindUnlocking }
func (Sticky) Kind() Kind               { return KindSticky }
func (Unsticky) Kind() Kind             { return KindUnsticky }
func (Preloaded) Kind() Kind            { return KindPreloaded }
func (HistorySnapshot) Kind() Kind      { return KindHistorySnapshot }
func (Success) Kind() Kind              { return KindSuccess }
func (Fail) Kind() Kind                 { return KindFail }
func (CurrentStatus) Kind() Kind        { return KindCurrentStatus }
func (RstInjectionDetected) Kind() Kind { return KindRstInjectionDetected }
func (NewDomainStarted) Kind() Kind     { return KindNewDomainStarted }

func (Locked) isEvent()               {}
func (Unlocking) isEvent()            {}
func (Sticky) isEvent()               {}
func (Unsticky) isEvent()             {}
func (Preloaded) isEvent()            {}
func (HistorySnapshot) isEvent()      {}
func (Success) isEvent()              {}
func (Fail) isEvent()                 {}
func (CurrentStatus) isEvent()        {}
func (RstInjectionDetected) isEvent() {}
func (NewDomainStarted) isEvent()     {}

func (e Locked) String() string {
	return fmt.Sprintf("LOCKED %s to strategy=%d [%s]", e.Domain, e.Strategy, e.Protocol)
}

func (e Unlocking) String() string {
	return fmt.Sprintf("UNLOCKING %s [%s]", e.Domain, e.Protocol)
}

func (e Sticky) String() string {
	return fmt.Sprintf("STICKY %s to strategy=%d", e.Domain, e.Strategy)
}

func (e Unsticky) String() string {
	return fmt.Sprintf("UNSTICKY %s [%s]", e.Domain, e.Protocol)
}

func (e Preloaded) String() string {
	return fmt.Sprintf("PRELOADED %s strategy=%d [%s]", e.Domain, e.Strategy, e.Protocol)
}

func (e HistorySnapshot) String() string {
	return fmt.Sprintf("HISTORY %s strategy=%d successes=%d failures=%d rate=%d%%",
		e.Domain, e.Strategy, e.Successes, e.Failures, e.Rate)
}

func (e Success) String() string {
	return statsLine("SUCCESS", e.Domain, e.Strategy, e.Count, e.Protocol)
}

func (e Fail) String() string {
	return statsLine("FAIL", e.Domain, e.Strategy, e.Count, e.Protocol)
}

func (e CurrentStatus) String() string {
	return fmt.Sprintf("CURRENT %s strategy=%d [%s] state=%s", e.Domain, e.Strategy, e.Protocol, e.State)
}

func (e RstInjectionDetected) String() string {
	return fmt.Sprintf("RST injection detected in_bytes=%d", e.InBytes)
}

func (e NewDomainStarted) String() string {
	return fmt.Sprintf("NEW %s starting", e.Domain)
}

func statsLine(verdict, domain string, strategy, count int, p model.Protocol) string {
	if count > 0 {
		return fmt.Sprintf("strategy-stats: %s %s strategy=%d count=%d [%s]", verdict, domain, strategy, count, p)
	}
	return fmt.Sprintf("strategy-stats: %s %s strategy=%d [%s]", verdict, domain, strategy, p)
}
