package model

type Status string

const (
	// Drip pre-eligibility states. A first message waits out its trigger
	// delay in PendingFirst; its paired second message sits in
	// ScheduledFuture until the first one is actually sent.
	PendingFirst    Status = "pending_first_message"
	ScheduledFuture Status = "scheduled_future"

	Scheduled Status = "scheduled"
	Sending   Status = "sending"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	Failed    Status = "failed"
	Canceled  Status = "canceled"
)

// transitions lists every legal edge of the message state machine.
// Anything not listed here is a forbidden transition, including all
// regressions (e.g. read back to delivered).
var transitions = map[Status][]Status{
	PendingFirst:    {Scheduled, Canceled},
	ScheduledFuture: {Scheduled, Canceled},
	Scheduled:       {Sending, Canceled},
	Sending:         {Sent, Failed},
	Sent:            {Delivered, Read, Failed},
	Delivered:       {Read, Failed},
	Read:            {},
	Failed:          {},
	Canceled:        {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal,
// forward-only step of the lifecycle.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Cancelable reports whether a message in this state may still be
// canceled by the user. Once a message enters Sending only the
// transport's own completion or timeout resolves it.
func (s Status) Cancelable() bool {
	return s == PendingFirst || s == ScheduledFuture || s == Scheduled
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
