package queue

// Status is the caller-visible admission state.
type Status string

const (
	// StatusWaiting means the user is in the queue, far from the front.
	StatusWaiting Status = "WAITING"
	// StatusAlmostDone means the user is within the configured threshold of
	// the front and the client should start polling faster.
	StatusAlmostDone Status = "ALMOST_DONE"
	// StatusInProgress means the user holds a live working slot and may
	// select seats and order.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCancelled means the user is neither waiting nor admitted.
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusAlmostDone, StatusInProgress, StatusCancelled:
		return true
	}
	return false
}

// MyQueueStatusResponse is returned from enter and status queries. Rank is
// the 1-based waiting position, or -1 once the user holds a working slot or
// has left the queue.
type MyQueueStatusResponse struct {
	EventID      string `json:"eventId"`
	UserID       string `json:"userId"`
	Sequence     int64  `json:"sequence,omitempty"`
	Rank         int64  `json:"myWaitingNumber"`
	TotalWaiting int64  `json:"totalWaitingNumber"`
	Status       Status `json:"queueStatus"`
}

// QueueStatsResponse is the per-event admin view.
type QueueStatsResponse struct {
	EventID       string `json:"event_id"`
	TotalWaiting  int64  `json:"total_waiting"`
	ActiveSlots   int64  `json:"active_slots"`
	MaxConcurrent int64  `json:"max_concurrent"`
	IssuedNumbers int64  `json:"issued_numbers"`
}
