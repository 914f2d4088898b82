package orders

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusScheduled, StatusCancelled},
	StatusConfirmed:  {StatusScheduled, StatusInProgress, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewOrderNumber returns a human-readable, unique order number: GST- for
// guest orders, CMD- for customer orders, followed by a ULID.
func NewOrderNumber(guest bool) string {
	prefix := "CMD"
	if guest {
		prefix = "GST"
	}
	return fmt.Sprintf("%s-%s", prefix, ulid.Make().String())
}
