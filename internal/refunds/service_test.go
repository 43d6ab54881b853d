package refunds

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/internal/payments"
	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/gateway"
	"github.com/scraplink/scraplink-backend/pkg/logger"
	"github.com/scraplink/scraplink-backend/pkg/outbox"
	"github.com/scraplink/scraplink-backend/pkg/pagination"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRefundRepo struct {
	created      []*models.Refund
	completedSum int64
	sumSequence  []int64
	byPayment    []models.Refund
}

func (s *stubRefundRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRefundRepo) Create(ctx context.Context, refund *models.Refund) (*models.Refund, error) {
	refund.ID = uuid.New()
	s.created = append(s.created, refund)
	return refund, nil
}

func (s *stubRefundRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
}

func (s *stubRefundRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error) {
	return s.byPayment, nil
}

func (s *stubRefundRepo) SumCompletedByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	if len(s.sumSequence) > 0 {
		next := s.sumSequence[0]
		s.sumSequence = s.sumSequence[1:]
		return next, nil
	}
	return s.completedSum, nil
}

type stubPaymentRepo struct {
	payment *models.Payment
}

func (s *stubPaymentRepo) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubPaymentRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	return payment, nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if s.payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.payment, nil
}

func (s *stubPaymentRepo) FindByExternalRef(ctx context.Context, refs ...string) (*models.Payment, error) {
	return s.payment, nil
}

func (s *stubPaymentRepo) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPaymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubPaymentRepo) UpdateStatusGuarded(ctx context.Context, paymentID uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	return true, nil
}

type orderGuardedCall struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

type stubOrderRepo struct {
	order              *models.Order
	guardedCalls       []orderGuardedCall
	guardedResult      bool
	paymentStatusCalls []enums.OrderPaymentStatus
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.order, nil
}

func (s *stubOrderRepo) List(ctx context.Context, scope orders.ListScope, params pagination.Params, status *enums.OrderStatus) ([]models.Order, string, error) {
	return nil, "", nil
}

func (s *stubOrderRepo) UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	s.guardedCalls = append(s.guardedCalls, orderGuardedCall{from: from, to: to})
	return s.guardedResult, nil
}

func (s *stubOrderRepo) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus) error {
	s.paymentStatusCalls = append(s.paymentStatusCalls, status)
	return nil
}

type stubGateway struct {
	result      *gateway.RefundResult
	err         error
	lastRequest *gateway.CreateRefundInput
}

func (s *stubGateway) CreatePayable(ctx context.Context, input gateway.CreatePayableInput) (*gateway.Payable, error) {
	return nil, nil
}

func (s *stubGateway) CreateRefund(ctx context.Context, input gateway.CreateRefundInput) (*gateway.RefundResult, error) {
	s.lastRequest = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	service Service
	repo    *stubRefundRepo
	orders  *stubOrderRepo
	gateway *stubGateway
	outbox  *stubOutbox
	buyerID uuid.UUID
	payment *models.Payment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	buyerID := uuid.New()
	orderID := uuid.New()
	payment := &models.Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		ExternalID: "inv_abc123",
		Amount:     200000,
		Status:     enums.PaymentStatusPaid,
	}
	f := &fixture{
		repo: &stubRefundRepo{},
		orders: &stubOrderRepo{
			guardedResult: true,
			order: &models.Order{
				ID:          orderID,
				OrderNumber: "ORD-20260829093054-000009",
				BuyerID:     buyerID,
				SellerID:    uuid.New(),
				Status:      enums.OrderStatusDelivered,
				TotalAmount: 200000,
			},
		},
		gateway: &stubGateway{result: &gateway.RefundResult{RefundCorrelationID: "rfd_001", Status: "PENDING"}},
		outbox:  &stubOutbox{},
		buyerID: buyerID,
		payment: payment,
	}
	logg := logger.New(logger.Options{ServiceName: "refunds-test", Output: io.Discard})
	svc, err := NewService(stubTx{}, f.repo, &stubPaymentRepo{payment: payment}, f.orders, f.gateway, f.outbox, nil, logg)
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *fixture) buyer() orders.Actor {
	return orders.Actor{UserID: f.buyerID, Role: enums.UserRoleBuyer}
}

func TestCreatePartialRefund(t *testing.T) {
	f := newFixture(t)

	dto, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    50000,
		Reason:    "damaged bale",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.RefundStatusPending, dto.Status)
	assert.Equal(t, int64(50000), dto.Amount)
	require.NotNil(t, dto.ExternalID)
	assert.Equal(t, "rfd_001", *dto.ExternalID)

	require.NotNil(t, f.gateway.lastRequest)
	assert.Equal(t, "inv_abc123", f.gateway.lastRequest.CorrelationID)

	// Partial refunds leave the order alone.
	assert.Empty(t, f.orders.guardedCalls)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventRefundCreated, f.outbox.events[0].EventType)
}

func TestCreateFullRefundCascadesOrder(t *testing.T) {
	f := newFixture(t)

	dto, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    200000,
		Reason:    "shipment lost",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200000), dto.Amount)

	require.Len(t, f.orders.guardedCalls, 1)
	assert.Equal(t, enums.OrderStatusDelivered, f.orders.guardedCalls[0].from)
	assert.Equal(t, enums.OrderStatusRefunded, f.orders.guardedCalls[0].to)

	require.Len(t, f.orders.paymentStatusCalls, 1)
	assert.Equal(t, enums.OrderPaymentStatusRefunded, f.orders.paymentStatusCalls[0])

	require.Len(t, f.outbox.events, 2)
	assert.Equal(t, enums.EventRefundCreated, f.outbox.events[0].EventType)
	assert.Equal(t, enums.EventOrderRefunded, f.outbox.events[1].EventType)
}

func TestCreateFullRefundAfterPartials(t *testing.T) {
	f := newFixture(t)
	f.repo.completedSum = 150000

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    50000,
		Reason:    "remainder",
	})
	require.NoError(t, err)

	// 150000 already returned plus this 50000 covers the full 200000.
	require.Len(t, f.orders.guardedCalls, 1)
	assert.Equal(t, enums.OrderStatusRefunded, f.orders.guardedCalls[0].to)
}

func TestCreateRejectsOverRefund(t *testing.T) {
	f := newFixture(t)
	f.repo.completedSum = 150000

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    60000,
		Reason:    "too much",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRefundExceedsBalance))
	assert.Nil(t, f.gateway.lastRequest)
	assert.Empty(t, f.repo.created)
}

func TestCreateRejectsConcurrentlyExhaustedBalance(t *testing.T) {
	f := newFixture(t)
	// The first read sees an untouched balance; by the time the write
	// transaction re-checks, a competing claim has drained most of it.
	f.repo.sumSequence = []int64{0, 180000}

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    50000,
		Reason:    "raced",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRefundExceedsBalance))
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.outbox.events)
}

func TestCreateRejectsUncapturedPayment(t *testing.T) {
	f := newFixture(t)
	f.payment.Status = enums.PaymentStatusPending

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    50000,
		Reason:    "not captured",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotRefundable))
}

func TestCreateRejectsThirdParty(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     orders.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
		Amount:    50000,
		Reason:    "stranger",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestCreateAllowsSeller(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     orders.Actor{UserID: f.orders.order.SellerID, Role: enums.UserRoleSeller},
		Amount:    25000,
		Reason:    "goodwill",
	})
	require.NoError(t, err)
}

func TestCreateLeavesNoRowOnGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = pkgerrors.New(pkgerrors.CodeGateway, "gateway unavailable")

	_, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    50000,
		Reason:    "retry me",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.outbox.events)
}

func TestCompletedGatewayResultMarksRefundCompleted(t *testing.T) {
	f := newFixture(t)
	f.gateway.result = &gateway.RefundResult{RefundCorrelationID: "rfd_002", Status: "SUCCEEDED"}

	dto, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    50000,
		Reason:    "instant",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCompleted, dto.Status)
	assert.NotNil(t, dto.CompletedAt)
}

func TestLostCascadeRaceKeepsRefundRow(t *testing.T) {
	f := newFixture(t)
	f.orders.guardedResult = false

	dto, err := f.service.Create(context.Background(), CreateInput{
		PaymentID: f.payment.ID,
		Actor:     f.buyer(),
		Amount:    200000,
		Reason:    "race",
	})
	require.NoError(t, err)
	assert.NotNil(t, dto)

	assert.Empty(t, f.orders.paymentStatusCalls, "lost race must not touch order payment status")
	require.Len(t, f.outbox.events, 1, "only refund_created is emitted when the flip is skipped")
}
