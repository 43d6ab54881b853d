package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/internal/cart"
	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/logger"
	"github.com/scraplink/scraplink-backend/pkg/outbox"
	"github.com/scraplink/scraplink-backend/pkg/pagination"
	"github.com/scraplink/scraplink-backend/pkg/types"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOrderRepo struct {
	created       []*models.Order
	findResult    *models.Order
	findErr       error
	guardedCalls  []guardedCall
	guardedResult bool
	guardedErr    error
	listScope     ListScope
	listStatus    *enums.OrderStatus
	listRows      []models.Order
}

type guardedCall struct {
	orderID uuid.UUID
	from    enums.OrderStatus
	to      enums.OrderStatus
	updates map[string]any
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	order.ID = uuid.New()
	s.created = append(s.created, order)
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findResult == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.findResult, nil
}

func (s *stubOrderRepo) List(ctx context.Context, scope ListScope, params pagination.Params, status *enums.OrderStatus) ([]models.Order, string, error) {
	s.listScope = scope
	s.listStatus = status
	return s.listRows, "", nil
}

func (s *stubOrderRepo) UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	s.guardedCalls = append(s.guardedCalls, guardedCall{orderID: orderID, from: from, to: to, updates: updates})
	if s.guardedErr != nil {
		return false, s.guardedErr
	}
	if s.findResult != nil && s.guardedResult {
		s.findResult.Status = to
	}
	return s.guardedResult, nil
}

func (s *stubOrderRepo) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus) error {
	return nil
}

type stubCartRepo struct {
	lines   []cart.Line
	cleared []uuid.UUID
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cart.Repository { return s }

func (s *stubCartRepo) FindLines(ctx context.Context, buyerID uuid.UUID) ([]cart.Line, error) {
	return s.lines, nil
}

func (s *stubCartRepo) Clear(ctx context.Context, buyerID uuid.UUID) error {
	s.cleared = append(s.cleared, buyerID)
	return nil
}

type stubSnapshots struct {
	lines []cart.Line
	err   error
}

func (s *stubSnapshots) Read(ctx context.Context, buyerID uuid.UUID) ([]cart.Line, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.lines, nil
}

type stockMove struct {
	listingID uuid.UUID
	quantity  int
}

type stubInventory struct {
	decrements   []stockMove
	restores     []stockMove
	decrementErr error
}

func (s *stubInventory) Decrement(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error {
	if s.decrementErr != nil {
		return s.decrementErr
	}
	s.decrements = append(s.decrements, stockMove{listingID: listingID, quantity: quantity})
	return nil
}

func (s *stubInventory) Restore(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error {
	s.restores = append(s.restores, stockMove{listingID: listingID, quantity: quantity})
	return nil
}

type stubPricing struct{}

func (stubPricing) ShippingFee(totalWeightGrams int) int64 { return 15000 }
func (stubPricing) Tax(subtotal int64) int64               { return subtotal / 10 }

type stubOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type serviceFixture struct {
	service   Service
	repo      *stubOrderRepo
	carts     *stubCartRepo
	snapshots *stubSnapshots
	inventory *stubInventory
	outbox    *stubOutbox
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:      &stubOrderRepo{guardedResult: true},
		carts:     &stubCartRepo{},
		snapshots: &stubSnapshots{},
		inventory: &stubInventory{},
		outbox:    &stubOutbox{},
	}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(stubTx{}, f.repo, f.carts, f.snapshots, f.inventory, stubPricing{}, f.outbox, nil, logg)
	require.NoError(t, err)
	f.service = svc
	return f
}

func testAddress() types.Address {
	return types.Address{
		RecipientName: "Ahmad Basri",
		Phone:         "+628123456789",
		Line1:         "Jl. Kebon Jeruk No. 7",
		City:          "Jakarta Barat",
		Province:      "DKI Jakarta",
		PostalCode:    "11530",
	}
}

func cartLine(sellerID uuid.UUID, price int64, qty, weight int) cart.Line {
	listingID := uuid.New()
	return cart.Line{
		Item: models.CartItem{
			ID:        uuid.New(),
			BuyerID:   uuid.New(),
			ListingID: listingID,
			Quantity:  qty,
		},
		Listing: models.Listing{
			ID:          listingID,
			SellerID:    sellerID,
			Title:       "HDPE pellets",
			UnitPrice:   price,
			Quantity:    qty + 5,
			WeightGrams: weight,
			Status:      enums.ListingStatusActive,
		},
	}
}

func TestCreateFromCartPartitionsBySeller(t *testing.T) {
	f := newServiceFixture(t)
	buyer := Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}
	sellerA := uuid.New()
	sellerB := uuid.New()
	f.snapshots.lines = []cart.Line{
		cartLine(sellerA, 50000, 2, 1000),
		cartLine(sellerB, 30000, 1, 500),
		cartLine(sellerA, 20000, 3, 200),
	}

	dtos, err := f.service.CreateFromCart(context.Background(), CreateFromCartInput{
		Buyer:           buyer,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	require.Len(t, dtos, 2)

	bySeller := map[uuid.UUID]OrderDTO{}
	for _, dto := range dtos {
		assert.Equal(t, buyer.UserID, dto.BuyerID)
		assert.Equal(t, enums.OrderStatusPending, dto.Status)
		assert.Equal(t, enums.OrderPaymentStatusUnpaid, dto.PaymentStatus)
		assert.Equal(t, enums.CurrencyIDR, dto.Currency)
		bySeller[dto.SellerID] = dto
	}

	orderA := bySeller[sellerA]
	require.Len(t, orderA.Items, 2)
	assert.Equal(t, int64(160000), orderA.Subtotal)
	assert.Equal(t, int64(15000), orderA.ShippingFee)
	assert.Equal(t, int64(16000), orderA.TaxAmount)
	assert.Equal(t, int64(191000), orderA.TotalAmount)

	orderB := bySeller[sellerB]
	require.Len(t, orderB.Items, 1)
	assert.Equal(t, int64(30000), orderB.Subtotal)
	assert.Equal(t, int64(30000+15000+3000), orderB.TotalAmount)

	// One decrement per cart line, one outbox event per order, cart cleared once.
	assert.Len(t, f.inventory.decrements, 3)
	assert.Len(t, f.outbox.events, 2)
	for _, event := range f.outbox.events {
		assert.Equal(t, enums.EventOrderCreated, event.EventType)
		assert.Equal(t, enums.AggregateOrder, event.AggregateType)
	}
	require.Len(t, f.carts.cleared, 1)
	assert.Equal(t, buyer.UserID, f.carts.cleared[0])
}

func TestCreateFromCartSnapshotsListingPrices(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	line := cartLine(seller, 75000, 2, 300)
	f.snapshots.lines = []cart.Line{line}

	dtos, err := f.service.CreateFromCart(context.Background(), CreateFromCartInput{
		Buyer:           Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	require.Len(t, dtos, 1)
	require.Len(t, dtos[0].Items, 1)

	item := dtos[0].Items[0]
	assert.Equal(t, line.Item.ListingID, item.ListingID)
	assert.Equal(t, "HDPE pellets", item.Name)
	assert.Equal(t, int64(75000), item.UnitPrice)
	assert.Equal(t, int64(150000), item.TotalPrice)
}

func TestCreateFromCartFailsWholesaleOnStockError(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	f.snapshots.lines = []cart.Line{cartLine(seller, 50000, 1, 100)}
	f.inventory.decrementErr = pkgerrors.New(pkgerrors.CodeInsufficientStock, "listing has 0 left")

	_, err := f.service.CreateFromCart(context.Background(), CreateFromCartInput{
		Buyer:           Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
		ShippingAddress: testAddress(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Empty(t, f.carts.cleared, "cart must survive a failed conversion")
	assert.Empty(t, f.outbox.events)
}

func TestCreateFromCartRejectsEmptyCart(t *testing.T) {
	f := newServiceFixture(t)
	f.snapshots.err = pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no items")

	_, err := f.service.CreateFromCart(context.Background(), CreateFromCartInput{
		Buyer:           Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
		ShippingAddress: testAddress(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	assert.Empty(t, f.repo.created)
}

func TestCreateFromCartRejectsInvalidAddress(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.CreateFromCart(context.Background(), CreateFromCartInput{
		Buyer:           Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
		ShippingAddress: types.Address{RecipientName: "No Address"},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func shippedFixtureOrder(seller uuid.UUID, status enums.OrderStatus) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-20260829093054-000001",
		BuyerID:     uuid.New(),
		SellerID:    seller,
		Status:      status,
		Items: []models.OrderItem{
			{ID: uuid.New(), ListingID: uuid.New(), Quantity: 2},
			{ID: uuid.New(), ListingID: uuid.New(), Quantity: 1},
		},
	}
}

func TestUpdateStatusMarksShipmentFields(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	f.repo.findResult = shippedFixtureOrder(seller, enums.OrderStatusProcessing)

	tracking := "JNE123456"
	courier := "JNE"
	dto, err := f.service.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:        f.repo.findResult.ID,
		Target:         enums.OrderStatusShipped,
		Actor:          Actor{UserID: seller, Role: enums.UserRoleSeller},
		TrackingNumber: &tracking,
		Courier:        &courier,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, dto.Status)

	require.Len(t, f.repo.guardedCalls, 1)
	call := f.repo.guardedCalls[0]
	assert.Equal(t, enums.OrderStatusProcessing, call.from)
	assert.Equal(t, enums.OrderStatusShipped, call.to)
	assert.Equal(t, tracking, call.updates["tracking_number"])
	assert.Equal(t, courier, call.updates["courier"])
	assert.Contains(t, call.updates, "shipped_at")

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventOrderStatusChanged, f.outbox.events[0].EventType)
}

func TestUpdateStatusRejectsNonSeller(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.findResult = shippedFixtureOrder(uuid.New(), enums.OrderStatusConfirmed)

	_, err := f.service.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: f.repo.findResult.ID,
		Target:  enums.OrderStatusPreparing,
		Actor:   Actor{UserID: f.repo.findResult.BuyerID, Role: enums.UserRoleBuyer},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Empty(t, f.repo.guardedCalls)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	f.repo.findResult = shippedFixtureOrder(seller, enums.OrderStatusPending)

	_, err := f.service.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: f.repo.findResult.ID,
		Target:  enums.OrderStatusShipped,
		Actor:   Actor{UserID: seller, Role: enums.UserRoleSeller},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestUpdateStatusRoutesCancelToCancelOperation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: uuid.New(),
		Target:  enums.OrderStatusCancelled,
		Actor:   Actor{UserID: uuid.New(), Role: enums.UserRoleSeller},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusSurfacesConcurrentModification(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	f.repo.findResult = shippedFixtureOrder(seller, enums.OrderStatusConfirmed)
	f.repo.guardedResult = false

	_, err := f.service.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: f.repo.findResult.ID,
		Target:  enums.OrderStatusPreparing,
		Actor:   Actor{UserID: seller, Role: enums.UserRoleSeller},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCancelRestoresInventory(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	order := shippedFixtureOrder(seller, enums.OrderStatusPending)
	f.repo.findResult = order

	dto, err := f.service.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		Actor:   Actor{UserID: order.BuyerID, Role: enums.UserRoleBuyer},
		Reason:  "found a better price",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, dto.Status)

	require.Len(t, f.inventory.restores, 2)
	assert.Equal(t, order.Items[0].ListingID, f.inventory.restores[0].listingID)
	assert.Equal(t, 2, f.inventory.restores[0].quantity)
	assert.Equal(t, 1, f.inventory.restores[1].quantity)

	require.Len(t, f.repo.guardedCalls, 1)
	assert.Contains(t, f.repo.guardedCalls[0].updates, "cancelled_at")

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventOrderCancelled, f.outbox.events[0].EventType)
}

func TestCancelRejectedAfterShipment(t *testing.T) {
	f := newServiceFixture(t)
	seller := uuid.New()
	f.repo.findResult = shippedFixtureOrder(seller, enums.OrderStatusShipped)

	_, err := f.service.Cancel(context.Background(), CancelInput{
		OrderID: f.repo.findResult.ID,
		Actor:   Actor{UserID: seller, Role: enums.UserRoleSeller},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	assert.Empty(t, f.inventory.restores)
}

func TestCancelRejectsThirdParty(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.findResult = shippedFixtureOrder(uuid.New(), enums.OrderStatusPending)

	_, err := f.service.Cancel(context.Background(), CancelInput{
		OrderID: f.repo.findResult.ID,
		Actor:   Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newServiceFixture(t)
	order := shippedFixtureOrder(uuid.New(), enums.OrderStatusPending)
	f.repo.findResult = order

	_, err := f.service.Get(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	dto, err := f.service.Get(context.Background(), order.ID, Actor{UserID: order.BuyerID, Role: enums.UserRoleBuyer})
	require.NoError(t, err)
	assert.Equal(t, order.ID, dto.ID)

	admin, err := f.service.Get(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, order.ID, admin.ID)
}

func TestListScopesByRole(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.listRows = []models.Order{
		{ID: uuid.New(), OrderNumber: "ORD-20260829093054-000002", CreatedAt: time.Now()},
	}

	buyer := Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer}
	list, err := f.service.List(context.Background(), ListInput{Actor: buyer, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.NotNil(t, f.repo.listScope.BuyerID)
	assert.Equal(t, buyer.UserID, *f.repo.listScope.BuyerID)
	assert.Nil(t, f.repo.listScope.SellerID)

	seller := Actor{UserID: uuid.New(), Role: enums.UserRoleSeller}
	_, err = f.service.List(context.Background(), ListInput{Actor: seller})
	require.NoError(t, err)
	require.NotNil(t, f.repo.listScope.SellerID)
	assert.Equal(t, seller.UserID, *f.repo.listScope.SellerID)
}
