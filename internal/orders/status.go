package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func Valid(s Status) bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// PlanTransition decides what a requested transition means for the current
// state. Re-requesting the current state is a no-op success, with one
// exception: cancelling an already cancelled order is rejected. The paid
// target additionally stamps paid_at, exactly once; callers that land on a
// no-op must leave the existing timestamp alone.
func PlanTransition(from, to Status) (noop bool, err error) {
	if !Valid(to) {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		if from == StatusCancelled {
			return false, fmt.Errorf("%w: order already cancelled", ErrInvalidTransition)
		}
		return true, nil
	}
	if to == StatusCancelled && (from == StatusShipped || from == StatusCompleted) {
		return false, fmt.Errorf("%w: cannot cancel a fulfilled order", ErrInvalidTransition)
	}
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return false, nil
}
