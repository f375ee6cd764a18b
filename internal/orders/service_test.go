package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"tixgate/internal/events"
	"tixgate/internal/payments"
	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/config"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Collectors register on the default Prometheus registry; one set per test
// binary.
var testMetrics = metrics.New()

// --- in-memory fakes ---

type fakeRepo struct {
	orders map[uuid.UUID]*Order

	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[uuid.UUID]*Order)}
}

func (f *fakeRepo) CreateOrder(ctx context.Context, order *Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	order.CreatedAt = time.Now().UTC()
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeRepo) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	for _, order := range f.orders {
		if order.PaymentID == paymentID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, apperrors.ErrOrderNotFound
}

func (f *fakeRepo) GetUserOrders(ctx context.Context, userID uint64) ([]Order, error) {
	var list []Order
	for _, order := range f.orders {
		if order.UserID == userID {
			list = append(list, *order)
		}
	}
	return list, nil
}

func (f *fakeRepo) Transition(ctx context.Context, id uuid.UUID, from, to Status, mutate func(updates map[string]interface{})) error {
	if !canTransition(from, to) {
		return errors.New("illegal transition")
	}
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return apperrors.ErrOrderNotFound
	}

	updates := map[string]interface{}{}
	if mutate != nil {
		mutate(updates)
	}
	order.Status = to
	if deadline, ok := updates["seat_confirm_deadline"]; ok {
		if t, ok := deadline.(time.Time); ok {
			order.SeatConfirmDeadline = &t
		} else {
			order.SeatConfirmDeadline = nil
		}
	}
	if fee, ok := updates["refund_fee"].(decimal.Decimal); ok {
		order.RefundFee = fee
	}
	return nil
}

func (f *fakeRepo) ListExpiredAwaitingConfirm(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	var expired []Order
	for _, order := range f.orders {
		if order.Status == StatusAwaitingSeatConfirm &&
			order.SeatConfirmDeadline != nil &&
			order.SeatConfirmDeadline.Before(now) {
			expired = append(expired, *order)
		}
	}
	return expired, nil
}

func (f *fakeRepo) status(id uuid.UUID) Status {
	return f.orders[id].Status
}

type fakeSchedules struct {
	schedule *events.EventSchedule
	mappings []events.SeatMapping
}

func (f *fakeSchedules) GetSchedule(ctx context.Context, id uint64) (*events.EventSchedule, error) {
	if f.schedule == nil || f.schedule.ID != id {
		return nil, errors.New("schedule not found")
	}
	return f.schedule, nil
}

func (f *fakeSchedules) GetSchedulesTicketingBetween(ctx context.Context, from, to time.Time) ([]events.EventSchedule, error) {
	return nil, nil
}

func (f *fakeSchedules) GetSeatMappings(ctx context.Context, scheduleID uint64, ids []uint64) ([]events.SeatMapping, error) {
	var found []events.SeatMapping
	for _, m := range f.mappings {
		for _, id := range ids {
			if m.ID == id {
				found = append(found, m)
			}
		}
	}
	return found, nil
}

func (f *fakeSchedules) CreateSchedule(ctx context.Context, schedule *events.EventSchedule) error {
	return nil
}

type fakeLocker struct {
	acquired   int
	released   int
	confirmed  int
	lastOwner  string
	acquireErr error
	confirmErr error
}

func (f *fakeLocker) Acquire(ctx context.Context, scheduleID uint64, ids []uint64, owner string) error {
	f.acquired++
	f.lastOwner = owner
	return f.acquireErr
}

func (f *fakeLocker) Release(ctx context.Context, scheduleID uint64, ids []uint64, owner string) error {
	f.released++
	f.lastOwner = owner
	return nil
}

func (f *fakeLocker) Confirm(ctx context.Context, scheduleID uint64, ids []uint64, owner string) error {
	f.confirmed++
	f.lastOwner = owner
	return f.confirmErr
}

func (f *fakeLocker) Holder(ctx context.Context, scheduleID, seatID uint64) (string, error) {
	return "", nil
}

type fakeGate struct {
	admitted      bool
	slotsReleased int
}

func (f *fakeGate) IsAdmitted(ctx context.Context, eventID, userID string) (bool, error) {
	return f.admitted, nil
}

func (f *fakeGate) ReleaseWorking(ctx context.Context, eventID, userID string) error {
	f.slotsReleased++
	return nil
}

type fakeGateway struct {
	payment *payments.Payment

	cancels        int
	partialCancels int
	lastPartial    decimal.Decimal
	cancelErr      error
}

func (f *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*payments.Payment, error) {
	if f.payment == nil {
		return nil, errors.New("payment not found")
	}
	return f.payment, nil
}

func (f *fakeGateway) CancelPayment(ctx context.Context, paymentID, reason string) error {
	f.cancels++
	return f.cancelErr
}

func (f *fakeGateway) PartialCancelPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) error {
	f.partialCancels++
	f.lastPartial = amount
	return f.cancelErr
}

type fakeProducer struct {
	orderEvents  []OrderEvent
	seatRequests []SeatMappingRequest
}

func (f *fakeProducer) PublishOrderEvent(ctx context.Context, event *OrderEvent) error {
	f.orderEvents = append(f.orderEvents, *event)
	return nil
}

func (f *fakeProducer) PublishSeatMappingRequest(ctx context.Context, request *SeatMappingRequest) error {
	f.seatRequests = append(f.seatRequests, *request)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type sagaFixture struct {
	service   Service
	repo      *fakeRepo
	schedules *fakeSchedules
	locker    *fakeLocker
	gate      *fakeGate
	gateway   *fakeGateway
	producer  *fakeProducer
}

func newSagaFixture() *sagaFixture {
	f := &sagaFixture{
		repo: newFakeRepo(),
		schedules: &fakeSchedules{
			schedule: &events.EventSchedule{
				ID:               5,
				EventID:          "concert-1",
				StartsAt:         time.Now().UTC().Add(30 * 24 * time.Hour),
				MaxConcurrent:    100,
				ReservationLimit: 2,
			},
			mappings: []events.SeatMapping{
				{ID: 101, EventScheduleID: 5, GradeName: "VIP", SeatRow: "A", SeatCol: 1, Price: decimal.NewFromInt(70000)},
				{ID: 102, EventScheduleID: 5, GradeName: "VIP", SeatRow: "A", SeatCol: 2, Price: decimal.NewFromInt(70000)},
				{ID: 103, EventScheduleID: 5, GradeName: "R", SeatRow: "B", SeatCol: 1, Price: decimal.NewFromInt(50000)},
			},
		},
		locker:   &fakeLocker{},
		gate:     &fakeGate{admitted: true},
		gateway:  &fakeGateway{},
		producer: &fakeProducer{},
	}

	cfg := &config.Config{
		Saga: config.SagaConfig{
			SeatConfirmTimeout:  5 * time.Minute,
			CompensationRetries: 2,
			CompensationBackoff: time.Millisecond,
		},
	}

	f.service = NewService(f.repo, f.schedules, f.locker, f.gate, f.gateway, f.producer, NewStatusHub(), cfg, logger.New(), testMetrics)
	return f
}

// seedOrder puts an order directly into the repo, bypassing admission.
func (f *sagaFixture) seedOrder(status Status) *Order {
	order := &Order{
		ID:              uuid.New(),
		PaymentID:       uuid.New().String(),
		UserID:          7,
		EventID:         "concert-1",
		EventScheduleID: 5,
		Status:          status,
		TotalPrice:      decimal.NewFromInt(140000),
		CreatedAt:       time.Now().UTC().Add(-20 * 24 * time.Hour),
		Tickets: []Ticket{
			{SeatMappingID: 101, GradeName: "VIP", SeatRow: "A", SeatCol: 1, Price: decimal.NewFromInt(70000)},
			{SeatMappingID: 102, GradeName: "VIP", SeatRow: "A", SeatCol: 2, Price: decimal.NewFromInt(70000)},
		},
	}
	copied := *order
	f.repo.orders[order.ID] = &copied
	return order
}

// --- CreateOrder ---

func TestCreateOrder_RequiresAdmission(t *testing.T) {
	f := newSagaFixture()
	f.gate.admitted = false

	_, err := f.service.CreateOrder(context.Background(), 7, &CreateOrderRequest{
		EventID:         "concert-1",
		EventScheduleID: 5,
		SeatMappingIDs:  []uint64{101},
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAdmitted)
	assert.Zero(t, f.locker.acquired)
}

func TestCreateOrder_EnforcesReservationLimit(t *testing.T) {
	f := newSagaFixture()

	_, err := f.service.CreateOrder(context.Background(), 7, &CreateOrderRequest{
		EventID:         "concert-1",
		EventScheduleID: 5,
		SeatMappingIDs:  []uint64{101, 102, 103},
	})

	assert.ErrorIs(t, err, apperrors.ErrReservationLimitExceeded)
	assert.Zero(t, f.locker.acquired)
}

func TestCreateOrder_LocksSeatsAndStartsSaga(t *testing.T) {
	f := newSagaFixture()

	resp, err := f.service.CreateOrder(context.Background(), 7, &CreateOrderRequest{
		EventID:         "concert-1",
		EventScheduleID: 5,
		SeatMappingIDs:  []uint64{101, 102},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, resp.Status)
	assert.True(t, resp.TotalPrice.Equal(decimal.NewFromInt(140000)))
	assert.Equal(t, 2, resp.SeatCount)
	assert.NotEmpty(t, resp.PaymentID)
	assert.Equal(t, 1, f.locker.acquired)

	// Locks belong to the order, not the buyer, so a second order by the
	// same user cannot touch them.
	assert.Equal(t, "order:"+resp.PaymentID, f.locker.lastOwner)

	require.Len(t, f.producer.orderEvents, 1)
	assert.Equal(t, StatusInProgress, f.producer.orderEvents[0].Status)
}

func TestCreateOrder_ReleasesLocksWhenPersistFails(t *testing.T) {
	f := newSagaFixture()
	f.repo.createErr = errors.New("connection reset")

	_, err := f.service.CreateOrder(context.Background(), 7, &CreateOrderRequest{
		EventID:         "concert-1",
		EventScheduleID: 5,
		SeatMappingIDs:  []uint64{101},
	})

	require.Error(t, err)
	assert.Equal(t, 1, f.locker.acquired)
	assert.Equal(t, 1, f.locker.released)
}

// --- paid webhook ---

func TestProcessWebhook_PaidPinsSeatsAndAwaitsConfirm(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusInProgress)
	f.gateway.payment = &payments.Payment{
		PaymentID: order.PaymentID,
		Status:    payments.StatusPaid,
		Amount:    order.TotalPrice,
	}

	err := f.service.ProcessWebhook(context.Background(), &WebhookRequest{
		Type: WebhookTypePaid,
		Data: WebhookData{PaymentID: order.PaymentID},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingSeatConfirm, f.repo.status(order.ID))
	assert.Equal(t, 1, f.locker.confirmed)
	assert.Equal(t, "order:"+order.PaymentID, f.locker.lastOwner)
	assert.NotNil(t, f.repo.orders[order.ID].SeatConfirmDeadline)

	require.Len(t, f.producer.seatRequests, 1)
	assert.Equal(t, order.ID.String(), f.producer.seatRequests[0].OrderID)
	assert.Equal(t, []uint64{101, 102}, f.producer.seatRequests[0].SeatMappingIDs)
}

func TestProcessWebhook_PaidReplayIsNoop(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusAwaitingSeatConfirm)

	err := f.service.ProcessWebhook(context.Background(), &WebhookRequest{
		Type: WebhookTypePaid,
		Data: WebhookData{PaymentID: order.PaymentID},
	})

	assert.NoError(t, err)
	assert.Zero(t, f.locker.confirmed)
	assert.Empty(t, f.producer.seatRequests)
}

func TestProcessWebhook_AmountMismatchCompensates(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusInProgress)
	f.gateway.payment = &payments.Payment{
		PaymentID: order.PaymentID,
		Status:    payments.StatusPaid,
		Amount:    decimal.NewFromInt(1),
	}

	err := f.service.ProcessWebhook(context.Background(), &WebhookRequest{
		Type: WebhookTypePaid,
		Data: WebhookData{PaymentID: order.PaymentID},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.cancels)
	assert.Equal(t, StatusCancelled, f.repo.status(order.ID))
}

func TestProcessWebhook_ExpiredLocksRefundPayment(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusInProgress)
	f.gateway.payment = &payments.Payment{
		PaymentID: order.PaymentID,
		Status:    payments.StatusPaid,
		Amount:    order.TotalPrice,
	}
	f.locker.confirmErr = apperrors.ErrLockExpired

	err := f.service.ProcessWebhook(context.Background(), &WebhookRequest{
		Type: WebhookTypePaid,
		Data: WebhookData{PaymentID: order.PaymentID},
	})

	assert.ErrorIs(t, err, apperrors.ErrLockExpired)
	assert.Equal(t, 1, f.gateway.cancels)
	assert.Equal(t, StatusCancelled, f.repo.status(order.ID))
}

func TestProcessWebhook_GatewayCancelledUndoesLocalState(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusInProgress)

	err := f.service.ProcessWebhook(context.Background(), &WebhookRequest{
		Type: WebhookTypeCancelled,
		Data: WebhookData{PaymentID: order.PaymentID},
	})
	require.NoError(t, err)

	// The payment is already void at the gateway; no compensation call.
	assert.Zero(t, f.gateway.cancels)
	assert.Equal(t, 1, f.locker.released)
	assert.Equal(t, StatusCancelled, f.repo.status(order.ID))
}

// --- seat mapping verdicts ---

func TestOnSeatMappingResult_SuccessCompletesOrder(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusAwaitingSeatConfirm)

	err := f.service.OnSeatMappingResult(context.Background(), &SeatMappingResult{
		OrderID: order.ID.String(),
		Success: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, f.repo.status(order.ID))
	assert.Equal(t, 1, f.gate.slotsReleased)
	assert.Zero(t, f.gateway.cancels)
}

func TestOnSeatMappingResult_FailureCompensates(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusAwaitingSeatConfirm)

	err := f.service.OnSeatMappingResult(context.Background(), &SeatMappingResult{
		PaymentID: order.PaymentID,
		Success:   false,
		Reason:    "seats already bound",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.cancels)
	assert.Equal(t, 1, f.locker.released)
	assert.Equal(t, StatusCancelled, f.repo.status(order.ID))
}

func TestOnSeatMappingResult_UnknownOrderIgnored(t *testing.T) {
	f := newSagaFixture()

	err := f.service.OnSeatMappingResult(context.Background(), &SeatMappingResult{
		OrderID: uuid.New().String(),
		Success: true,
	})

	assert.NoError(t, err)
}

func TestOnSeatMappingResult_CompensationExhaustionKeepsOrderOpen(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusAwaitingSeatConfirm)
	f.gateway.cancelErr = errors.New("gateway down")

	err := f.service.OnSeatMappingResult(context.Background(), &SeatMappingResult{
		PaymentID: order.PaymentID,
		Success:   false,
	})

	assert.ErrorIs(t, err, apperrors.ErrCompensationFailed)
	assert.GreaterOrEqual(t, f.gateway.cancels, 1)
	// Still AWAITING_SEAT_CONFIRM so the sweeper retries later.
	assert.Equal(t, StatusAwaitingSeatConfirm, f.repo.status(order.ID))
}

// --- refunds ---

func TestRefundOrder_PartialFeeSchedule(t *testing.T) {
	f := newSagaFixture()
	// Performance 8 days out puts the order in the 10 percent tier.
	f.schedules.schedule.StartsAt = time.Now().UTC().Add(8 * 24 * time.Hour)
	order := f.seedOrder(StatusCompleted)

	resp, err := f.service.RefundOrder(context.Background(), 7, order.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusRefunded, resp.Status)
	assert.Equal(t, 1, f.gateway.partialCancels)
	assert.True(t, f.gateway.lastPartial.Equal(decimal.NewFromInt(126000)),
		"refunded %s", f.gateway.lastPartial)
	assert.Equal(t, StatusRefunded, f.repo.status(order.ID))
	assert.Equal(t, 1, f.locker.released)
}

func TestRefundOrder_FreeTierCancelsInFull(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusCompleted)

	_, err := f.service.RefundOrder(context.Background(), 7, order.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.cancels)
	assert.Zero(t, f.gateway.partialCancels)
	assert.Equal(t, StatusRefunded, f.repo.status(order.ID))
}

func TestRefundOrder_RejectsOtherUsersOrder(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusCompleted)

	_, err := f.service.RefundOrder(context.Background(), 99, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestRefundOrder_OnlyCompletedOrders(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusInProgress)

	_, err := f.service.RefundOrder(context.Background(), 7, order.ID)
	assert.Error(t, err)
	assert.Zero(t, f.gateway.cancels)
}

// --- sweeper ---

func TestSweepExpired_CompensatesTimedOutOrders(t *testing.T) {
	f := newSagaFixture()
	order := f.seedOrder(StatusAwaitingSeatConfirm)
	past := time.Now().UTC().Add(-time.Minute)
	f.repo.orders[order.ID].SeatConfirmDeadline = &past

	settled, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, f.gateway.cancels)
	assert.Equal(t, StatusCancelled, f.repo.status(order.ID))
}

func TestSweepExpired_NothingExpired(t *testing.T) {
	f := newSagaFixture()
	f.seedOrder(StatusAwaitingSeatConfirm)

	settled, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
}
