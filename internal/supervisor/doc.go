// Package supervisor runs the external engine and learns from its output.
//
// A Supervisor owns one engine process at a time. Prepare builds the
// numbered strategy catalogs and the host exclusion file. Start restores the
// learning store, writes the history preload, spawns the engine with
// combined stdout and stderr on a single pipe, and starts exactly one reader
// goroutine. The reader classifies every line, applies it to the learning
// store, persists on lock changes and every few outcomes, and publishes
// notifications on a bounded channel.
//
// State machine:
//
//	Stopped -> Preparing -> Running -> Stopping -> Stopped
//
// Stop is the only cancellation primitive: SIGTERM, a bounded wait, then
// SIGKILL. When the engine exits on its own the reader performs the same
// teardown, so the state always returns to Stopped.
//
// Thread-safety:
//   - Start, Stop and Prepare serialize on a control mutex
//   - State, IsRunning, SessionID and Notifications never block
//   - the debug file is written only by the reader
package supervisor
