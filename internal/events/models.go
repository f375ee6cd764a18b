package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventSchedule is one ticketed performance of an event. Admission policy
// (slot capacity, per-user seat cap) is configured per schedule and pushed to
// Redis when the ticketing window opens.
type EventSchedule struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID string `gorm:"type:varchar(64);index;not null" json:"event_id"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`

	TicketingAt time.Time `gorm:"index;not null" json:"ticketing_at"`
	StartsAt    time.Time `gorm:"not null" json:"starts_at"`

	MaxConcurrent    int `gorm:"not null;default:100" json:"max_concurrent"`
	ReservationLimit int `gorm:"not null;default:4" json:"reservation_limit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SeatMappings []SeatMapping `json:"seat_mappings,omitempty" gorm:"foreignKey:EventScheduleID;constraint:OnDelete:CASCADE;"`
}

// SeatMapping is one sellable seat in a schedule. The authoritative
// availability flag lives in the seat service; the local copy carries the
// price used for order totals and refund math.
type SeatMapping struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventScheduleID uint64          `gorm:"index;not null" json:"event_schedule_id"`
	GradeName       string          `gorm:"type:varchar(32);not null" json:"grade_name"`
	SeatRow         string          `gorm:"type:varchar(8);not null" json:"seat_row"`
	SeatCol         int             `gorm:"not null" json:"seat_col"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName sets the table name for EventSchedule
func (EventSchedule) TableName() string {
	return "event_schedules"
}

// TableName sets the table name for SeatMapping
func (SeatMapping) TableName() string {
	return "seat_mappings"
}
