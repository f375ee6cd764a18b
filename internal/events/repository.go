package events

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	GetSchedule(ctx context.Context, id uint64) (*EventSchedule, error)
	GetSchedulesTicketingBetween(ctx context.Context, from, to time.Time) ([]EventSchedule, error)
	GetSeatMappings(ctx context.Context, scheduleID uint64, ids []uint64) ([]SeatMapping, error)
	CreateSchedule(ctx context.Context, schedule *EventSchedule) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetSchedule(ctx context.Context, id uint64) (*EventSchedule, error) {
	var schedule EventSchedule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *repository) GetSchedulesTicketingBetween(ctx context.Context, from, to time.Time) ([]EventSchedule, error) {
	var schedules []EventSchedule
	err := r.db.WithContext(ctx).
		Where("ticketing_at >= ? AND ticketing_at < ?", from, to).
		Order("ticketing_at ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *repository) GetSeatMappings(ctx context.Context, scheduleID uint64, ids []uint64) ([]SeatMapping, error) {
	var mappings []SeatMapping
	err := r.db.WithContext(ctx).
		Where("event_schedule_id = ? AND id IN ?", scheduleID, ids).
		Find(&mappings).Error
	return mappings, err
}

func (r *repository) CreateSchedule(ctx context.Context, schedule *EventSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}
