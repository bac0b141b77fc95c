package booking

import "fmt"

// Status represents the current state of a booking in its lifecycle.
type Status string

const (
	StatusPendingOwnerApproval Status = "PENDING_OWNER_APPROVAL"
	StatusConfirmed            Status = "CONFIRMED"
	StatusActive               Status = "ACTIVE"
	StatusCompleted            Status = "COMPLETED"
	StatusDisputed             Status = "DISPUTED"
	StatusDenied               Status = "DENIED"
	StatusCancelled            Status = "CANCELLED"
)

// validTransitions defines the state machine for booking status transitions.
var validTransitions = map[Status][]Status{
	StatusPendingOwnerApproval: {StatusConfirmed, StatusDenied},
	StatusConfirmed:            {StatusActive, StatusCancelled},
	StatusActive:               {StatusCompleted, StatusDisputed},
	StatusCompleted:            {},
	StatusDisputed:             {},
	StatusDenied:               {},
	StatusCancelled:            {},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPendingOwnerApproval,
		StatusConfirmed,
		StatusActive,
		StatusCompleted,
		StatusDisputed,
		StatusDenied,
		StatusCancelled,
	}
}

// IsValidTransition reports whether from -> to is an edge of the lifecycle.
// It is false for unknown statuses and for self-transitions.
func IsValidTransition(from, to Status) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsValid returns true if the status is a recognized booking status.
func (s Status) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	return IsValidTransition(s, target)
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanBeCancelled returns true if the booking can be cancelled from this status.
func (s Status) CanBeCancelled() bool {
	return s.CanTransitionTo(StatusCancelled)
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", NewValidationError(fmt.Sprintf("invalid booking status: %s", s))
	}
	return status, nil
}
