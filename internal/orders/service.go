package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tixgate/internal/events"
	"tixgate/internal/payments"
	"tixgate/internal/seatlock"
	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/config"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdmissionGate is the slice of the queue service the saga needs: proof of a
// working slot at order time and slot release when the saga settles.
type AdmissionGate interface {
	IsAdmitted(ctx context.Context, eventID, userID string) (bool, error)
	ReleaseWorking(ctx context.Context, eventID, userID string) error
}

// Service runs the order saga:
//
//	IN_PROGRESS -> AWAITING_SEAT_CONFIRM -> COMPLETED
//	     \                 \-> CANCELLED (compensated)
//	      \-> CANCELLED
//	COMPLETED -> REFUNDED
type Service interface {
	CreateOrder(ctx context.Context, userID uint64, req *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(ctx context.Context, userID uint64, orderID uuid.UUID) (*OrderResponse, error)
	GetUserOrders(ctx context.Context, userID uint64) ([]OrderResponse, error)

	// ProcessWebhook handles a verified gateway transaction notification.
	ProcessWebhook(ctx context.Context, req *WebhookRequest) error

	// OnSeatMappingResult applies the seat service's verdict on a paid order.
	OnSeatMappingResult(ctx context.Context, result *SeatMappingResult) error

	PreviewRefund(ctx context.Context, userID uint64, orderID uuid.UUID) (*RefundPreviewResponse, error)
	RefundOrder(ctx context.Context, userID uint64, orderID uuid.UUID) (*OrderResponse, error)

	// SweepExpired compensates paid orders whose seat confirmation deadline
	// passed without a verdict. Returns how many orders it settled.
	SweepExpired(ctx context.Context) (int, error)

	Hub() *StatusHub
}

type service struct {
	repo      Repository
	schedules events.Repository
	locker    seatlock.Locker
	admission AdmissionGate
	gateway   payments.Gateway
	producer  EventProducer
	hub       *StatusHub
	cfg       config.SagaConfig
	log       *logger.Logger
	mtx       *metrics.Metrics
}

func NewService(
	repo Repository,
	schedules events.Repository,
	locker seatlock.Locker,
	admission AdmissionGate,
	gateway payments.Gateway,
	producer EventProducer,
	hub *StatusHub,
	cfg *config.Config,
	log *logger.Logger,
	mtx *metrics.Metrics,
) Service {
	return &service{
		repo:      repo,
		schedules: schedules,
		locker:    locker,
		admission: admission,
		gateway:   gateway,
		producer:  producer,
		hub:       hub,
		cfg:       cfg.Saga,
		log:       log,
		mtx:       mtx,
	}
}

// lockOwner scopes seat locks to a single order. Scoping by user would let a
// buyer's next order re-take (and later expire) seats permanently assigned to
// a completed one, or release seats a concurrent order of theirs still holds.
func lockOwner(paymentID string) string {
	return "order:" + paymentID
}

func (s *service) Hub() *StatusHub {
	return s.hub
}

func (s *service) CreateOrder(ctx context.Context, userID uint64, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	userStr := strconv.FormatUint(userID, 10)

	admitted, err := s.admission.IsAdmitted(ctx, req.EventID, userStr)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, apperrors.ErrNotAdmitted
	}

	schedule, err := s.schedules.GetSchedule(ctx, req.EventScheduleID)
	if err != nil {
		return nil, fmt.Errorf("schedule lookup failed: %w", err)
	}
	if schedule.EventID != req.EventID {
		return nil, fmt.Errorf("schedule %d does not belong to event %s", req.EventScheduleID, req.EventID)
	}

	if len(req.SeatMappingIDs) > schedule.ReservationLimit {
		return nil, apperrors.ErrReservationLimitExceeded
	}

	mappings, err := s.schedules.GetSeatMappings(ctx, req.EventScheduleID, req.SeatMappingIDs)
	if err != nil {
		return nil, fmt.Errorf("seat lookup failed: %w", err)
	}
	if len(mappings) != len(req.SeatMappingIDs) {
		return nil, fmt.Errorf("request references unknown seats")
	}

	paymentID := uuid.New().String()
	owner := lockOwner(paymentID)
	if err := s.locker.Acquire(ctx, req.EventScheduleID, req.SeatMappingIDs, owner); err != nil {
		return nil, err
	}

	total := decimal.Zero
	tickets := make([]Ticket, len(mappings))
	for i, m := range mappings {
		total = total.Add(m.Price)
		tickets[i] = Ticket{
			SeatMappingID: m.ID,
			GradeName:     m.GradeName,
			SeatRow:       m.SeatRow,
			SeatCol:       m.SeatCol,
			Price:         m.Price,
		}
	}

	order := &Order{
		ID:              uuid.New(),
		PaymentID:       paymentID,
		UserID:          userID,
		EventID:         req.EventID,
		EventScheduleID: req.EventScheduleID,
		Status:          StatusInProgress,
		TotalPrice:      total,
		Tickets:         tickets,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		// Give the seats back; the locks would otherwise pin them until TTL.
		if relErr := s.locker.Release(ctx, req.EventScheduleID, req.SeatMappingIDs, owner); relErr != nil {
			s.log.ErrorWithContext(ctx, "Seat lock release after failed create", relErr, map[string]interface{}{
				"payment_id": order.PaymentID,
			})
		}
		return nil, fmt.Errorf("order create failed: %w", err)
	}

	s.mtx.OrderTransitions.WithLabelValues("", string(StatusInProgress)).Inc()
	s.log.LogOrderCreated(ctx, order.ID.String(), order.PaymentID, userID)
	s.publishEvent(ctx, order, StatusInProgress)

	return &CreateOrderResponse{
		OrderID:    order.ID.String(),
		PaymentID:  order.PaymentID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		SeatCount:  len(tickets),
		CreatedAt:  order.CreatedAt,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, userID uint64, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.ErrOrderNotFound
	}
	return toOrderResponse(order), nil
}

func (s *service) GetUserOrders(ctx context.Context, userID uint64) ([]OrderResponse, error) {
	list, err := s.repo.GetUserOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	responses := make([]OrderResponse, len(list))
	for i := range list {
		responses[i] = *toOrderResponse(&list[i])
	}
	return responses, nil
}

func (s *service) ProcessWebhook(ctx context.Context, req *WebhookRequest) error {
	switch req.Type {
	case WebhookTypePaid:
		return s.handlePaid(ctx, req.Data.PaymentID)
	case WebhookTypeCancelled:
		return s.handleGatewayCancelled(ctx, req.Data.PaymentID)
	case WebhookTypeReady:
		return nil
	default:
		s.log.InfoWithContext(ctx, "Ignoring webhook type", map[string]interface{}{"type": req.Type})
		return nil
	}
}

func (s *service) handlePaid(ctx context.Context, paymentID string) error {
	order, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}

	// Gateway webhooks redeliver; replays against a settled order are no-ops.
	if order.Status != StatusInProgress {
		return nil
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("payment verification failed: %w", err)
	}
	if payment.Status != payments.StatusPaid {
		s.log.InfoWithContext(ctx, "Paid webhook for non-paid transaction", map[string]interface{}{
			"payment_id": paymentID,
			"status":     payment.Status,
		})
		return nil
	}
	if !payment.Amount.Equal(order.TotalPrice) {
		s.log.ErrorWithContext(ctx, "Paid amount mismatch", fmt.Errorf("expected %s, captured %s", order.TotalPrice, payment.Amount), map[string]interface{}{
			"payment_id": paymentID,
		})
		return s.compensateAndCancel(ctx, order, StatusInProgress, "paid amount mismatch")
	}

	owner := order.LockOwner()
	if err := s.locker.Confirm(ctx, order.EventScheduleID, order.SeatMappingIDs(), owner); err != nil {
		if errors.Is(err, apperrors.ErrLockExpired) {
			// Payment landed after the seat holds lapsed. Refund and cancel.
			if cErr := s.compensateAndCancel(ctx, order, StatusInProgress, "seat locks expired before payment"); cErr != nil {
				return cErr
			}
			return apperrors.ErrLockExpired
		}
		return err
	}

	deadline := time.Now().UTC().Add(s.cfg.SeatConfirmTimeout)
	err = s.repo.Transition(ctx, order.ID, StatusInProgress, StatusAwaitingSeatConfirm, func(updates map[string]interface{}) {
		updates["seat_confirm_deadline"] = deadline
	})
	if err != nil {
		return err
	}

	if err := s.producer.PublishSeatMappingRequest(ctx, &SeatMappingRequest{
		OrderID:         order.ID.String(),
		PaymentID:       order.PaymentID,
		UserID:          order.UserID,
		EventScheduleID: order.EventScheduleID,
		SeatMappingIDs:  order.SeatMappingIDs(),
	}); err != nil {
		// The sweeper settles the order if the request never reaches the
		// seat service.
		s.log.ErrorWithContext(ctx, "Seat mapping request publish failed", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
	}

	s.transitioned(ctx, order, StatusInProgress, StatusAwaitingSeatConfirm, "")
	return nil
}

func (s *service) handleGatewayCancelled(ctx context.Context, paymentID string) error {
	order, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}

	// Payment is already void at the gateway; only local state needs undoing.
	return s.cancelLocally(ctx, order, order.Status, "cancelled by gateway")
}

func (s *service) OnSeatMappingResult(ctx context.Context, result *SeatMappingResult) error {
	order, err := s.lookupForResult(ctx, result)
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			s.log.InfoWithContext(ctx, "Seat mapping result for unknown order", map[string]interface{}{
				"order_id":   result.OrderID,
				"payment_id": result.PaymentID,
			})
			return nil
		}
		return err
	}

	if order.Status != StatusAwaitingSeatConfirm {
		// Replay of a verdict already applied, or the sweeper got there first.
		return nil
	}

	if result.Success {
		now := time.Now().UTC()
		err := s.repo.Transition(ctx, order.ID, StatusAwaitingSeatConfirm, StatusCompleted, func(updates map[string]interface{}) {
			updates["completed_at"] = now
			updates["seat_confirm_deadline"] = nil
		})
		if err != nil {
			return err
		}

		s.releaseWorkingSlot(ctx, order)
		s.transitioned(ctx, order, StatusAwaitingSeatConfirm, StatusCompleted, "")
		return nil
	}

	reason := result.Reason
	if reason == "" {
		reason = "seat mapping rejected"
	}
	return s.compensateAndCancel(ctx, order, StatusAwaitingSeatConfirm, reason)
}

func (s *service) lookupForResult(ctx context.Context, result *SeatMappingResult) (*Order, error) {
	if result.OrderID != "" {
		if id, err := uuid.Parse(result.OrderID); err == nil {
			return s.repo.GetByID(ctx, id)
		}
	}
	return s.repo.GetByPaymentID(ctx, result.PaymentID)
}

// compensateAndCancel refunds the captured payment with bounded retries, then
// cancels the order locally. The payment must be void before the order flips
// so a crash between the steps re-runs compensation, not the cancellation.
func (s *service) compensateAndCancel(ctx context.Context, order *Order, from Status, reason string) error {
	attempt := 0
	r := retrier.New(retrier.ExponentialBackoff(s.cfg.CompensationRetries, s.cfg.CompensationBackoff), nil)

	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		cancelErr := s.gateway.CancelPayment(ctx, order.PaymentID, reason)
		s.log.LogCompensation(ctx, order.ID.String(), order.PaymentID, attempt, cancelErr)
		return cancelErr
	})
	if err != nil {
		s.mtx.Compensations.WithLabelValues("failed").Inc()
		return fmt.Errorf("compensation for order %s: %w: %w", order.ID, apperrors.ErrCompensationFailed, err)
	}
	s.mtx.Compensations.WithLabelValues("succeeded").Inc()

	return s.cancelLocally(ctx, order, from, reason)
}

// cancelLocally releases seats and the working slot and flips the order to
// CANCELLED. The payment has either never been captured or is already void.
func (s *service) cancelLocally(ctx context.Context, order *Order, from Status, reason string) error {
	if err := s.locker.Release(ctx, order.EventScheduleID, order.SeatMappingIDs(), order.LockOwner()); err != nil {
		s.log.ErrorWithContext(ctx, "Seat lock release on cancel", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
	}

	now := time.Now().UTC()
	err := s.repo.Transition(ctx, order.ID, from, StatusCancelled, func(updates map[string]interface{}) {
		updates["cancelled_at"] = now
		updates["seat_confirm_deadline"] = nil
	})
	if err != nil {
		return err
	}

	s.releaseWorkingSlot(ctx, order)
	s.transitioned(ctx, order, from, StatusCancelled, reason)
	return nil
}

func (s *service) PreviewRefund(ctx context.Context, userID uint64, orderID uuid.UUID) (*RefundPreviewResponse, error) {
	order, fee, err := s.refundableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return &RefundPreviewResponse{
		OrderID:      order.ID.String(),
		TotalPrice:   order.TotalPrice,
		RefundFee:    fee,
		RefundAmount: order.TotalPrice.Sub(fee),
	}, nil
}

func (s *service) RefundOrder(ctx context.Context, userID uint64, orderID uuid.UUID) (*OrderResponse, error) {
	order, fee, err := s.refundableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	refundAmount := order.TotalPrice.Sub(fee)
	if fee.IsZero() {
		err = s.gateway.CancelPayment(ctx, order.PaymentID, "customer refund")
	} else {
		err = s.gateway.PartialCancelPayment(ctx, order.PaymentID, refundAmount, "customer refund")
	}
	if err != nil {
		return nil, fmt.Errorf("refund failed: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.Transition(ctx, order.ID, StatusCompleted, StatusRefunded, WithRefund(fee, now)); err != nil {
		return nil, err
	}

	if err := s.locker.Release(ctx, order.EventScheduleID, order.SeatMappingIDs(), order.LockOwner()); err != nil {
		s.log.ErrorWithContext(ctx, "Seat lock release on refund", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
	}

	s.transitioned(ctx, order, StatusCompleted, StatusRefunded, "customer refund")

	order.Status = StatusRefunded
	order.RefundFee = fee
	order.CancelledAt = &now
	return toOrderResponse(order), nil
}

func (s *service) refundableOrder(ctx context.Context, userID uint64, orderID uuid.UUID) (*Order, decimal.Decimal, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if order.UserID != userID {
		return nil, decimal.Zero, apperrors.ErrOrderNotFound
	}
	if order.Status != StatusCompleted {
		return nil, decimal.Zero, fmt.Errorf("order %s is %s, only completed orders can be refunded", order.ID, order.Status)
	}

	schedule, err := s.schedules.GetSchedule(ctx, order.EventScheduleID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("schedule lookup failed: %w", err)
	}

	fee, err := CalculateRefundFee(order.TotalPrice, order.CreatedAt, schedule.StartsAt, time.Now())
	if err != nil {
		return nil, decimal.Zero, err
	}
	return order, fee, nil
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpiredAwaitingConfirm(ctx, time.Now().UTC(), 100)
	if err != nil {
		return 0, fmt.Errorf("expired order lookup failed: %w", err)
	}

	settled := 0
	for i := range expired {
		order := &expired[i]
		if err := s.compensateAndCancel(ctx, order, StatusAwaitingSeatConfirm, "seat confirmation timeout"); err != nil {
			// Left in AWAITING_SEAT_CONFIRM; the next sweep retries.
			s.log.ErrorWithContext(ctx, "Sweep compensation failed", err, map[string]interface{}{
				"order_id": order.ID.String(),
			})
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *service) releaseWorkingSlot(ctx context.Context, order *Order) {
	userStr := strconv.FormatUint(order.UserID, 10)
	if err := s.admission.ReleaseWorking(ctx, order.EventID, userStr); err != nil {
		s.log.ErrorWithContext(ctx, "Working slot release failed", err, map[string]interface{}{
			"order_id": order.ID.String(),
			"event_id": order.EventID,
		})
	}
}

func (s *service) transitioned(ctx context.Context, order *Order, from, to Status, reason string) {
	s.mtx.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	s.log.LogOrderTransition(ctx, order.ID.String(), string(from), string(to))
	s.hub.Publish(order.ID.String(), order.PaymentID, to, reason)

	snapshot := *order
	snapshot.Status = to
	s.publishEvent(ctx, &snapshot, to)
}

func (s *service) publishEvent(ctx context.Context, order *Order, status Status) {
	event := &OrderEvent{
		OrderID:         order.ID.String(),
		PaymentID:       order.PaymentID,
		UserID:          order.UserID,
		EventScheduleID: order.EventScheduleID,
		Status:          status,
		OccurredAt:      time.Now().UTC(),
	}
	if err := s.producer.PublishOrderEvent(ctx, event); err != nil {
		s.log.ErrorWithContext(ctx, "Order event publish failed", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
	}
}
