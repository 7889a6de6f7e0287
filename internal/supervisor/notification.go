package supervisor

import (
	"time"

	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/learning"
)

// Notification is one engine output line annotated by the reader.
type Notification struct {
	Session string
	Time    time.Time
	Line    string
	// Event is nil for lines that matched no pattern.
	Event events.Event
	// Change is what applying Event did to the learning store.
	Change learning.Change
}

// Recognized reports whether Line parsed to an event.
func (n Notification) Recognized() bool {
	return n.Event != nil
}
