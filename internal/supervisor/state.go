package supervisor

import "fmt"

// State is the supervisor lifecycle state.
type State int32

const (
	// StateStopped means no engine process is owned.
	StateStopped State = iota
	// StatePreparing covers artifact generation and store restore.
	StatePreparing
	// StateRunning means the engine is up and the reader is consuming it.
	StateRunning
	// StateStopping covers termination, reader join and the final persist.
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
