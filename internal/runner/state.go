package runner

import "time"

// State is a step of a single dispatch.
type State string

const (
	Resolved     State = "resolved"
	Validated    State = "validated"
	Extracting   State = "extracting"
	Retrying     State = "retrying"
	Transforming State = "transforming"
	Done         State = "done"
	Failed       State = "failed"
)

// Event is one transition of a dispatch.
type Event struct {
	RequestID string
	Route     string
	Provider  string
	State     State
	Attempt   int
	Err       error
	At        time.Time
}

type Observer func(Event)
