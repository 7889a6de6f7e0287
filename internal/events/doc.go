// Package events classifies engine output lines into typed events.
//
// The engine speaks a line-oriented text protocol on stdout/stderr. Parse
// looks at exactly one line and returns one of a closed set of Event
// variants, or false when the line is not recognized. Unrecognized lines are
// normal (the engine logs far more than the learning engine cares about) and
// are never an error.
//
// Event variants:
//   - Locked, Unlocking: durable lock changes, mirrored into the store
//   - Success, Fail: per-strategy outcomes, counted in history
//   - HistorySnapshot: the engine's own counters, authoritative overwrite
//   - Sticky, Unsticky, Preloaded, CurrentStatus, NewDomainStarted,
//     RstInjectionDetected: informational only
//
// Every variant's String method renders the canonical line form, so
// Parse(e.String()) reproduces e.
package events
