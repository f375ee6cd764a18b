package keys

import "fmt"

// Canonical Redis key schema for the admission and seat-lock store. Every
// component formats keys through this package so the schema lives in one place.
//
//	queue:{eventId}:nextNumber              sequence counter (INCR)
//	queue:{eventId}:waiting                 waiting ZSET, score = issued sequence
//	queue:{eventId}:working:{userId}        working slot, TTL-managed
//	queue:{eventId}:activeSlots             current working slot count
//	queue:{eventId}:maxConcurrent           per-event slot capacity
//	seatLock:{eventScheduleId}:{seatMappingId}  exclusive seat claim

func QueueNextNumber(eventID string) string {
	return fmt.Sprintf("queue:%s:nextNumber", eventID)
}

func QueueWaiting(eventID string) string {
	return fmt.Sprintf("queue:%s:waiting", eventID)
}

func QueueWorking(eventID, userID string) string {
	return fmt.Sprintf("queue:%s:working:%s", eventID, userID)
}

// QueueWorkingPattern matches every working slot of an event. Used by the
// reconcile scan that corrects activeSlots after TTL expiries.
func QueueWorkingPattern(eventID string) string {
	return fmt.Sprintf("queue:%s:working:*", eventID)
}

func QueueActiveSlots(eventID string) string {
	return fmt.Sprintf("queue:%s:activeSlots", eventID)
}

func QueueMaxConcurrent(eventID string) string {
	return fmt.Sprintf("queue:%s:maxConcurrent", eventID)
}

// OpenEvents is the SET of event ids whose ticketing window is open. The
// promoter loop iterates it every tick.
func OpenEvents() string {
	return "queue:openEvents"
}

func SeatLock(eventScheduleID uint64, seatMappingID uint64) string {
	return fmt.Sprintf("seatLock:%d:%d", eventScheduleID, seatMappingID)
}

// Kafka topic names.

const (
	TopicOrderEvents        = "order-events"
	TopicSeatMappingRequest = "seat-mapping-requests"
	TopicSeatMappingEvents  = "seat-mapping-events"
)

// QueueLifecycleTopic is the per-event topic created when a ticketing window
// opens and deleted when it closes.
func QueueLifecycleTopic(eventID string) string {
	return fmt.Sprintf("ticketing-queue-%s", eventID)
}
