package orders

// CreateOrderRequest starts the saga for an admitted user. The payment id is
// issued server side and returned so the client can hand it to the gateway.
type CreateOrderRequest struct {
	EventID         string   `json:"event_id" binding:"required,eventid"`
	EventScheduleID uint64   `json:"event_schedule_id" binding:"required"`
	SeatMappingIDs  []uint64 `json:"seat_mapping_ids" binding:"required,min=1,dive,min=1"`
}

// WebhookRequest is the gateway's transaction notification body.
type WebhookRequest struct {
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

type WebhookData struct {
	TransactionID string `json:"transactionId"`
	PaymentID     string `json:"paymentId"`
}

// Gateway webhook event types.
const (
	WebhookTypeReady     = "Transaction.Ready"
	WebhookTypePaid      = "Transaction.Paid"
	WebhookTypeCancelled = "Transaction.Cancelled"
)
