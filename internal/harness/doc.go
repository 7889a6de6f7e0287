// Package harness replays scripted engine output through the learning
// pipeline and checks the result.
//
// A scenario seeds the learning database, feeds engine lines through the
// event parser and the learning store exactly as the live reader does,
// persists, and then evaluates assertions against the trace, the
// in-memory state and the persisted keys.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  - namespace: root
//	    key: learned-strategies-tls
//	    value: '{"example.com": 3}'
//	lines:
//	  - "strategy-stats: SUCCESS example.com strategy=3 [TLS]"
//	  - "LOCKED example.com to strategy=3"
//	autolock_threshold: 3
//	assertions:
//	  - type: event_count
//	    kind: locked
//	    count: 1
//	  - type: lock
//	    domain: example.com
//	    strategy: 3
//	  - type: persisted
//	    namespace: tls-locks
//	    key: example.com
//	    value: "3"
//
// # Assertion Types
//
//   - event_count: the trace holds exactly N events of a kind
//   - event_order: kinds appear in the given order
//   - unrecognized: exactly N lines were not recognized
//   - lock: (domain, protocol) is locked to a strategy; strategy 0 means unlocked
//   - counters: (domain, strategy) has the given successes and failures
//   - persisted: a key holds a value after Persist, or is absent
//
// # Isolation
//
// Every run uses a fresh in-memory SQLite database, so seeds and persisted
// keys never leak between scenarios. Traces carry no timestamps and are
// safe to compare against golden files.
package harness
