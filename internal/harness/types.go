package harness

import "github.com/roach88/bypassd/internal/model"

// TraceEvent is one fed line and what it did.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Line string `json:"line"`
	// Kind is empty when the line was not recognized.
	Kind        string `json:"kind,omitempty"`
	LockChanged bool   `json:"lock_changed,omitempty"`
	Outcome     bool   `json:"outcome,omitempty"`
}

// Recognized reports whether the line parsed as an event.
func (e TraceEvent) Recognized() bool {
	return e.Kind != ""
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per fed line, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Migrated is set when legacy keys were found in the seed.
	Migrated bool `json:"migrated,omitempty"`

	// AutoLocked lists the locks AutoLockFromHistory created.
	AutoLocked []model.LockEntry `json:"auto_locked,omitempty"`

	// Locks and History are the final learning state.
	Locks   []model.LockEntry     `json:"locks"`
	History []model.HistoryRecord `json:"history"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Locks:   []model.LockEntry{},
		History: []model.HistoryRecord{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a line to the trace with the next sequence number.
func (r *Result) AddTrace(line, kind string, lockChanged, outcome bool) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:         len(r.Trace) + 1,
		Line:        line,
		Kind:        kind,
		LockChanged: lockChanged,
		Outcome:     outcome,
	})
}
