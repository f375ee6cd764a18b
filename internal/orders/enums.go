package orders

// Status is the order saga state.
type Status string

const (
	// StatusInProgress: order created, seats locked, waiting for payment.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusAwaitingSeatConfirm: payment captured, waiting for the seat
	// service to acknowledge the mapping.
	StatusAwaitingSeatConfirm Status = "AWAITING_SEAT_CONFIRM"
	// StatusCompleted: terminal success.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled: terminal failure, any captured payment compensated.
	StatusCancelled Status = "CANCELLED"
	// StatusRefunded: completed order refunded on user request.
	StatusRefunded Status = "REFUNDED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusInProgress, StatusAwaitingSeatConfirm, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// canTransition encodes the legal saga edges. Refund only leaves COMPLETED.
func canTransition(from, to Status) bool {
	switch from {
	case StatusInProgress:
		return to == StatusAwaitingSeatConfirm || to == StatusCancelled
	case StatusAwaitingSeatConfirm:
		return to == StatusCompleted || to == StatusCancelled
	case StatusCompleted:
		return to == StatusRefunded
	default:
		return false
	}
}
