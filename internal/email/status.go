package email

import "fmt"

// Status is the lifecycle state of an email record.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusOpened    Status = "opened"
	StatusClicked   Status = "clicked"
	StatusBounced   Status = "bounced"
	StatusSpam      Status = "spam"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// progress orders the non-terminal states.
var progress = map[Status]int{
	StatusQueued:    0,
	StatusSending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusOpened:    4,
	StatusClicked:   5,
}

var terminal = map[Status]bool{
	StatusBounced:  true,
	StatusSpam:     true,
	StatusRejected: true,
	StatusFailed:   true,
}

// Statuses lists every status, non-terminal states first.
func Statuses() []Status {
	return []Status{
		StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusOpened, StatusClicked,
		StatusBounced, StatusSpam, StatusRejected, StatusFailed,
	}
}

func (s Status) Valid() bool {
	_, ok := progress[s]
	return ok || terminal[s]
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return terminal[s]
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether a record in from may move to to.
//
// Terminal states are sticky. Non-terminal states only move forward, with one
// exception: a send that failed transiently goes from sending back to queued
// while it waits for the retry.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() || from == to {
		return false
	}
	if to.Terminal() {
		return true
	}
	if from == StatusSending && to == StatusQueued {
		return true
	}
	return progress[to] > progress[from]
}

// AllowedFrom lists the states a record may be in for a move to to succeed.
// Stores use it to guard status updates in a single statement.
func AllowedFrom(to Status) []Status {
	var from []Status
	for _, s := range Statuses() {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}
