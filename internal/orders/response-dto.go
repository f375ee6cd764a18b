package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderResponse returns the ids the client needs to run the payment.
type CreateOrderResponse struct {
	OrderID    string          `json:"order_id"`
	PaymentID  string          `json:"payment_id"`
	Status     Status          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	SeatCount  int             `json:"seat_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OrderResponse is the full order view.
type OrderResponse struct {
	OrderID         string           `json:"order_id"`
	PaymentID       string           `json:"payment_id"`
	EventID         string           `json:"event_id"`
	EventScheduleID uint64           `json:"event_schedule_id"`
	Status          Status           `json:"status"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	RefundFee       decimal.Decimal  `json:"refund_fee"`
	Tickets         []TicketResponse `json:"tickets"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
}

type TicketResponse struct {
	SeatMappingID uint64          `json:"seat_mapping_id"`
	GradeName     string          `json:"grade_name"`
	SeatRow       string          `json:"seat_row"`
	SeatCol       int             `json:"seat_col"`
	Price         decimal.Decimal `json:"price"`
}

// RefundPreviewResponse shows the fee before the user commits.
type RefundPreviewResponse struct {
	OrderID      string          `json:"order_id"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	RefundFee    decimal.Decimal `json:"refund_fee"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// StatusEvent is pushed over SSE whenever the saga moves.
type StatusEvent struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func toOrderResponse(o *Order) *OrderResponse {
	tickets := make([]TicketResponse, len(o.Tickets))
	for i, t := range o.Tickets {
		tickets[i] = TicketResponse{
			SeatMappingID: t.SeatMappingID,
			GradeName:     t.GradeName,
			SeatRow:       t.SeatRow,
			SeatCol:       t.SeatCol,
			Price:         t.Price,
		}
	}
	return &OrderResponse{
		OrderID:         o.ID.String(),
		PaymentID:       o.PaymentID,
		EventID:         o.EventID,
		EventScheduleID: o.EventScheduleID,
		Status:          o.Status,
		TotalPrice:      o.TotalPrice,
		RefundFee:       o.RefundFee,
		Tickets:         tickets,
		CreatedAt:       o.CreatedAt,
		CompletedAt:     o.CompletedAt,
		CancelledAt:     o.CancelledAt,
	}
}
