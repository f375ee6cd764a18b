package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the saga aggregate. PaymentID is the merchant-side id handed to
// the payment gateway before capture; webhooks correlate on it.
type Order struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PaymentID       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_id"`
	UserID          uint64    `gorm:"index;not null" json:"user_id"`
	EventID         string    `gorm:"type:varchar(64);index;not null" json:"event_id"`
	EventScheduleID uint64    `gorm:"index;not null" json:"event_schedule_id"`

	Status     Status          `gorm:"type:varchar(32);not null;default:'IN_PROGRESS'" json:"status"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	RefundFee  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"refund_fee"`

	// SeatConfirmDeadline bounds how long a paid order may wait for the seat
	// service before the sweeper compensates it.
	SeatConfirmDeadline *time.Time `gorm:"index" json:"seat_confirm_deadline,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Tickets []Ticket `json:"tickets,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;"`
}

// Ticket is one purchased seat of an order.
type Ticket struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrderID       uuid.UUID       `gorm:"type:uuid;index;not null" json:"order_id"`
	SeatMappingID uint64          `gorm:"index;not null" json:"seat_mapping_id"`
	GradeName     string          `gorm:"type:varchar(32);not null" json:"grade_name"`
	SeatRow       string          `gorm:"type:varchar(8);not null" json:"seat_row"`
	SeatCol       int             `gorm:"not null" json:"seat_col"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TableName sets the table name for Order
func (Order) TableName() string {
	return "orders"
}

// TableName sets the table name for Ticket
func (Ticket) TableName() string {
	return "tickets"
}

func (o *Order) SeatMappingIDs() []uint64 {
	ids := make([]uint64, len(o.Tickets))
	for i, t := range o.Tickets {
		ids[i] = t.SeatMappingID
	}
	return ids
}

// LockOwner is the value stamped into this order's seat lock keys.
func (o *Order) LockOwner() string {
	return lockOwner(o.PaymentID)
}
