package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tixgate/internal/shared/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	GetUserOrders(ctx context.Context, userID uint64) ([]Order, error)

	// Transition moves an order between saga states with an optimistic
	// guard: the update applies only while the row is still in `from`.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, mutate func(updates map[string]interface{})) error

	// ListExpiredAwaitingConfirm returns paid orders whose seat confirmation
	// deadline has passed.
	ListExpiredAwaitingConfirm(ctx context.Context, now time.Time, limit int) ([]Order, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Tickets").
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Tickets").
		Where("payment_id = ?", paymentID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetUserOrders(ctx context.Context, userID uint64) ([]Order, error) {
	var ordersList []Order
	err := r.db.WithContext(ctx).
		Preload("Tickets").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ordersList).Error
	return ordersList, err
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to Status, mutate func(updates map[string]interface{})) error {
	if !canTransition(from, to) {
		return fmt.Errorf("illegal order transition %s -> %s", from, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if mutate != nil {
		mutate(updates)
	}

	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Someone else moved the order first. Treat a lost race as a stale
		// view rather than a hard failure.
		return fmt.Errorf("order %s is no longer %s: %w", id, from, apperrors.ErrOrderNotFound)
	}
	return nil
}

func (r *repository) ListExpiredAwaitingConfirm(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	var expired []Order
	err := r.db.WithContext(ctx).
		Preload("Tickets").
		Where("status = ? AND seat_confirm_deadline IS NOT NULL AND seat_confirm_deadline < ?", StatusAwaitingSeatConfirm, now).
		Order("seat_confirm_deadline ASC").
		Limit(limit).
		Find(&expired).Error
	return expired, err
}

// WithRefund records the refund fee on a COMPLETED -> REFUNDED transition.
func WithRefund(fee decimal.Decimal, cancelledAt time.Time) func(map[string]interface{}) {
	return func(updates map[string]interface{}) {
		updates["refund_fee"] = fee
		updates["cancelled_at"] = cancelledAt
	}
}
