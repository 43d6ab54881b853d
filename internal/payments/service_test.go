package payments

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/pkg/config"
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

type stubPaymentRepo struct {
	created []*models.Payment
	pending *models.Payment
	byID    *models.Payment
	byOrder []models.Payment
}

func (s *stubPaymentRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPaymentRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	payment.ID = uuid.New()
	s.created = append(s.created, payment)
	return payment, nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if s.byID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.byID, nil
}

func (s *stubPaymentRepo) FindByExternalRef(ctx context.Context, refs ...string) (*models.Payment, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

func (s *stubPaymentRepo) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return s.pending, nil
}

func (s *stubPaymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return s.byOrder, nil
}

func (s *stubPaymentRepo) UpdateStatusGuarded(ctx context.Context, paymentID uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	return true, nil
}

type stubOrderRepo struct {
	order              *models.Order
	paymentStatusCalls []enums.OrderPaymentStatus
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrderRepo) List(ctx context.Context, scope orders.ListScope, params pagination.Params, status *enums.OrderStatus) ([]models.Order, string, error) {
	return nil, "", nil
}

func (s *stubOrderRepo) UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	return true, nil
}

func (s *stubOrderRepo) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus) error {
	s.paymentStatusCalls = append(s.paymentStatusCalls, status)
	return nil
}

type stubUsers struct {
	user *models.User
}

func (s *stubUsers) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.user, nil
}

type stubGateway struct {
	payable     *gateway.Payable
	createErr   error
	lastRequest *gateway.CreatePayableInput
}

func (s *stubGateway) CreatePayable(ctx context.Context, input gateway.CreatePayableInput) (*gateway.Payable, error) {
	s.lastRequest = &input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.payable, nil
}

func (s *stubGateway) CreateRefund(ctx context.Context, input gateway.CreateRefundInput) (*gateway.RefundResult, error) {
	return &gateway.RefundResult{RefundCorrelationID: "rfd_1", Status: "PENDING"}, nil
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
	repo    *stubPaymentRepo
	orders  *stubOrderRepo
	gateway *stubGateway
	outbox  *stubOutbox
	buyerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	buyerID := uuid.New()
	f := &fixture{
		repo: &stubPaymentRepo{},
		orders: &stubOrderRepo{order: &models.Order{
			ID:          uuid.New(),
			OrderNumber: "ORD-20260829093054-000007",
			BuyerID:     buyerID,
			SellerID:    uuid.New(),
			TotalAmount: 191000,
			Currency:    enums.CurrencyIDR,
			Status:      enums.OrderStatusPending,
		}},
		gateway: &stubGateway{payable: &gateway.Payable{
			CorrelationID: "inv_abc123",
			Channel:       enums.PaymentChannelVirtualAccount,
			Fields:        gateway.ChannelFields{VANumber: "8808123456789012"},
			ExpiresAt:     time.Now().Add(24 * time.Hour),
		}},
		outbox:  &stubOutbox{},
		buyerID: buyerID,
	}
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	svc, err := NewService(
		stubTx{}, f.repo, f.orders,
		&stubUsers{user: &models.User{ID: buyerID, Name: "Ahmad Basri", Email: "ahmad@example.com", Role: enums.UserRoleBuyer, Active: true}},
		f.gateway, f.outbox,
		config.GatewayConfig{InvoiceExpiry: 24 * time.Hour},
		nil, logg,
	)
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *fixture) buyer() orders.Actor {
	return orders.Actor{UserID: f.buyerID, Role: enums.UserRoleBuyer}
}

func TestInitiateCreatesPendingPayment(t *testing.T) {
	f := newFixture(t)

	dto, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID:       f.orders.order.ID,
		Buyer:         f.buyer(),
		Channel:       enums.PaymentChannelVirtualAccount,
		ChannelParams: gateway.ChannelParams{BankCode: "BCA"},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusPending, dto.Status)
	assert.Equal(t, "inv_abc123", dto.ExternalID)
	assert.Equal(t, int64(191000), dto.Amount)
	require.NotNil(t, dto.VANumber)
	assert.Equal(t, "8808123456789012", *dto.VANumber)
	assert.Nil(t, dto.QRString)
	require.NotNil(t, dto.ExpiresAt)

	require.NotNil(t, f.gateway.lastRequest)
	assert.Equal(t, "ORD-20260829093054-000007", f.gateway.lastRequest.ReferenceID)
	assert.Equal(t, int64(191000), f.gateway.lastRequest.Amount)
	assert.Equal(t, "BCA", f.gateway.lastRequest.ChannelParams.BankCode)
	assert.Equal(t, "Ahmad Basri", f.gateway.lastRequest.Customer.Name)

	require.Len(t, f.orders.paymentStatusCalls, 1)
	assert.Equal(t, enums.OrderPaymentStatusPending, f.orders.paymentStatusCalls[0])

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventPaymentInitiated, f.outbox.events[0].EventType)
	assert.Equal(t, enums.AggregatePayment, f.outbox.events[0].AggregateType)
}

func TestInitiateRejectsNonBuyer(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID: f.orders.order.ID,
		Buyer:   orders.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
		Channel: enums.PaymentChannelQRIS,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Nil(t, f.gateway.lastRequest)
}

func TestInitiateRejectsNonPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.orders.order.Status = enums.OrderStatusConfirmed

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID: f.orders.order.ID,
		Buyer:   f.buyer(),
		Channel: enums.PaymentChannelQRIS,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotPayable))
}

func TestInitiateRejectsSecondOpenAttempt(t *testing.T) {
	f := newFixture(t)
	f.repo.pending = &models.Payment{ID: uuid.New(), OrderID: f.orders.order.ID, Status: enums.PaymentStatusPending}

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID: f.orders.order.ID,
		Buyer:   f.buyer(),
		Channel: enums.PaymentChannelQRIS,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentAlreadyPending))
	assert.Nil(t, f.gateway.lastRequest, "gateway must not be called when an attempt is already open")
}

func TestInitiateLeavesNoRowOnGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = pkgerrors.New(pkgerrors.CodeGateway, "gateway unavailable")

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID: f.orders.order.ID,
		Buyer:   f.buyer(),
		Channel: enums.PaymentChannelVirtualAccount,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeGateway).Retryable)
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.outbox.events)
	assert.Empty(t, f.orders.paymentStatusCalls)
}

func TestInitiateRejectsUnknownChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID: f.orders.order.ID,
		Buyer:   f.buyer(),
		Channel: enums.PaymentChannel("cash_on_delivery"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetEnforcesOrderOwnership(t *testing.T) {
	f := newFixture(t)
	f.repo.byID = &models.Payment{
		ID:      uuid.New(),
		OrderID: f.orders.order.ID,
		Status:  enums.PaymentStatusPaid,
		Amount:  191000,
	}

	_, err := f.service.Get(context.Background(), f.repo.byID.ID, orders.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	dto, err := f.service.Get(context.Background(), f.repo.byID.ID, f.buyer())
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, dto.Status)
}
