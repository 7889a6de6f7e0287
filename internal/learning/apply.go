package learning

import (
	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/model"
)

// Change reports what applying one event did to the Store.
type Change struct {
	// LockChanged is set when a Locked/Unlocking event changed a lock.
	LockChanged bool
	// CounterChanged is set for Success/Fail and for snapshots that
	// changed stored counters.
	CounterChanged bool
	// Outcome is set for Success/Fail events.
	Outcome bool
	// Lock is the affected lock for Locked/Unlocking; Strategy is 0 after
	// an unlock.
	Lock *model.LockEntry
}

// Apply mirrors one engine event into the Store. Informational events
// return a zero Change.
func (s *Store) Apply(ev events.Event) Change {
	switch e := ev.(type) {
	case events.Locked:
		if !s.ApplyLocked(e.Domain, e.Protocol, e.Strategy) {
			return Change{}
		}
		return Change{
			LockChanged: true,
			Lock:        &model.LockEntry{Domain: e.Domain, Protocol: e.Protocol, Strategy: e.Strategy},
		}
	case events.Unlocking:
		if !s.ApplyUnlocking(e.Domain, e.Protocol) {
			return Change{}
		}
		return Change{
			LockChanged: true,
			Lock:        &model.LockEntry{Domain: e.Domain, Protocol: e.Protocol},
		}
	case events.Success:
		s.RecordOutcome(e.Domain, e.Strategy, true)
		return Change{CounterChanged: true, Outcome: true}
	case events.Fail:
		s.RecordOutcome(e.Domain, e.Strategy, false)
		return Change{CounterChanged: true, Outcome: true}
	case events.HistorySnapshot:
		return Change{CounterChanged: s.ApplyHistorySnapshot(e.Domain, e.Strategy, e.Successes, e.Failures)}
	default:
		return Change{}
	}
}
