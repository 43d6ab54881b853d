package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/internal/cart"
	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/logger"
	"github.com/scraplink/scraplink-backend/pkg/metrics"
	"github.com/scraplink/scraplink-backend/pkg/outbox"
	"github.com/scraplink/scraplink-backend/pkg/outbox/payloads"
	"github.com/scraplink/scraplink-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type snapshotReader interface {
	Read(ctx context.Context, buyerID uuid.UUID) ([]cart.Line, error)
}

type inventoryLedger interface {
	Decrement(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error
	Restore(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error
}

type shippingPolicy interface {
	ShippingFee(totalWeightGrams int) int64
	Tax(subtotal int64) int64
}

// Service exposes the order lifecycle: cart conversion, status transitions,
// cancellation and reads.
type Service interface {
	CreateFromCart(ctx context.Context, input CreateFromCartInput) ([]OrderDTO, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDTO, error)
	List(ctx context.Context, input ListInput) (*OrderList, error)
}

type service struct {
	tx        txRunner
	repo      Repository
	carts     cart.Repository
	snapshots snapshotReader
	inventory inventoryLedger
	pricing   shippingPolicy
	events    outboxPublisher
	metrics   *metrics.EngineMetrics
	logger    *logger.Logger
	now       func() time.Time
}

// NewService wires the order service. All collaborators are required except
// metrics, which degrades to a no-op recorder.
func NewService(
	tx txRunner,
	repo Repository,
	carts cart.Repository,
	snapshots snapshotReader,
	inventory inventoryLedger,
	pricing shippingPolicy,
	events outboxPublisher,
	m *metrics.EngineMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if repo == nil {
		return nil, errors.New("orders repository is required")
	}
	if carts == nil {
		return nil, errors.New("cart repository is required")
	}
	if snapshots == nil {
		return nil, errors.New("cart snapshot reader is required")
	}
	if inventory == nil {
		return nil, errors.New("inventory ledger is required")
	}
	if pricing == nil {
		return nil, errors.New("pricing policy is required")
	}
	if events == nil {
		return nil, errors.New("outbox publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if m == nil {
		m = metrics.NewEngineMetrics(nil)
	}
	return &service{
		tx:        tx,
		repo:      repo,
		carts:     carts,
		snapshots: snapshots,
		inventory: inventory,
		pricing:   pricing,
		events:    events,
		metrics:   m,
		logger:    logg,
		now:       time.Now,
	}, nil
}

// sellerPartition groups the cart lines destined for one seller's order.
type sellerPartition struct {
	sellerID uuid.UUID
	lines    []cart.Line
}

// CreateFromCart converts the buyer's entire cart into one order per seller.
// Every partition commits in a single transaction; any stock or persistence
// failure rolls back all of them and leaves the cart untouched.
func (s *service) CreateFromCart(ctx context.Context, input CreateFromCartInput) ([]OrderDTO, error) {
	if input.Buyer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	address, err := json.Marshal(input.ShippingAddress.Normalized())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode shipping address")
	}

	lines, err := s.snapshots.Read(ctx, input.Buyer.UserID)
	if err != nil {
		return nil, err
	}
	partitions := partitionBySeller(lines)

	ctx = s.logger.WithUserID(ctx, input.Buyer.UserID.String())
	now := s.now().UTC()

	var created []models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, partition := range partitions {
			order := s.buildOrder(input, partition, address, now)
			for _, line := range partition.lines {
				if decErr := s.inventory.Decrement(ctx, tx, line.Item.ListingID, line.Item.Quantity); decErr != nil {
					return decErr
				}
			}
			persisted, createErr := repo.Create(ctx, order)
			if createErr != nil {
				return createErr
			}
			if emitErr := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   persisted.ID,
				Actor:         &outbox.ActorRef{UserID: input.Buyer.UserID, Role: string(input.Buyer.Role)},
				Data: payloads.OrderCreatedEvent{
					OrderID:     persisted.ID,
					OrderNumber: persisted.OrderNumber,
					BuyerID:     persisted.BuyerID,
					SellerID:    persisted.SellerID,
					TotalAmount: persisted.TotalAmount,
					Currency:    string(persisted.Currency),
					ItemCount:   len(persisted.Items),
				},
				OccurredAt: now,
			}); emitErr != nil {
				return emitErr
			}
			created = append(created, *persisted)
		}
		// The cart is consumed in the same transaction so a rollback of any
		// partition also preserves the cart exactly as it was.
		return s.carts.WithTx(tx).Clear(ctx, input.Buyer.UserID)
	})
	if err != nil {
		return nil, err
	}

	dtos := make([]OrderDTO, 0, len(created))
	for _, order := range created {
		s.metrics.IncOrderCreated()
		ctx := s.logger.WithOrderID(ctx, order.ID.String())
		s.logger.Info(s.logger.WithFields(ctx, map[string]any{
			"order_number": order.OrderNumber,
			"seller_id":    order.SellerID.String(),
			"total_amount": order.TotalAmount,
		}), "order created from cart")
		dtos = append(dtos, ToOrderDTO(order))
	}
	return dtos, nil
}

func (s *service) buildOrder(input CreateFromCartInput, partition sellerPartition, address json.RawMessage, now time.Time) *models.Order {
	var subtotal int64
	var weight int
	items := make([]models.OrderItem, 0, len(partition.lines))
	for _, line := range partition.lines {
		lineTotal := line.Listing.UnitPrice * int64(line.Item.Quantity)
		subtotal += lineTotal
		weight += line.Listing.WeightGrams * line.Item.Quantity
		items = append(items, models.OrderItem{
			ListingID:  line.Item.ListingID,
			Name:       line.Listing.Title,
			UnitPrice:  line.Listing.UnitPrice,
			Quantity:   line.Item.Quantity,
			TotalPrice: lineTotal,
		})
	}

	shipping := s.pricing.ShippingFee(weight)
	tax := s.pricing.Tax(subtotal)
	return &models.Order{
		OrderNumber:     GenerateOrderNumber(now),
		BuyerID:         input.Buyer.UserID,
		SellerID:        partition.sellerID,
		Subtotal:        subtotal,
		ShippingFee:     shipping,
		TaxAmount:       tax,
		TotalAmount:     subtotal + shipping + tax,
		Currency:        enums.CurrencyIDR,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.OrderPaymentStatusUnpaid,
		ShippingAddress: address,
		Items:           items,
	}
}

// partitionBySeller splits cart lines into per-seller groups. Partition order
// is deterministic so the response and generated order numbers are stable.
func partitionBySeller(lines []cart.Line) []sellerPartition {
	bySeller := make(map[uuid.UUID][]cart.Line)
	for _, line := range lines {
		bySeller[line.Listing.SellerID] = append(bySeller[line.Listing.SellerID], line)
	}
	partitions := make([]sellerPartition, 0, len(bySeller))
	for sellerID, group := range bySeller {
		partitions = append(partitions, sellerPartition{sellerID: sellerID, lines: group})
	}
	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].sellerID.String() < partitions[j].sellerID.String()
	})
	return partitions
}

// UpdateStatus moves an order forward through its lifecycle. Only the seller
// of the order (or an admin) may drive forward transitions; cancellation has
// its own operation because buyers may also cancel.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error) {
	if input.Target == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation to cancel an order")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !s.actorIsSeller(input.Actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller may update order status")
	}
	if err := ValidateTransition(order.Status, input.Target); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updates := map[string]any{"updated_at": now}
	switch input.Target {
	case enums.OrderStatusConfirmed:
		updates["confirmed_at"] = now
	case enums.OrderStatusShipped:
		updates["shipped_at"] = now
		if input.TrackingNumber != nil {
			updates["tracking_number"] = *input.TrackingNumber
		}
		if input.Courier != nil {
			updates["courier"] = *input.Courier
		}
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	}

	from := order.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, txErr := repo.UpdateStatusGuarded(ctx, order.ID, from, input.Target, updates)
		if txErr != nil {
			return txErr
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently").
				WithDetails(map[string]any{"order_id": order.ID.String()})
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        from,
				To:          input.Target,
				ChangedAt:   now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(from), string(input.Target))
	ctx = s.logger.WithOrderID(ctx, order.ID.String())
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"from": string(from),
		"to":   string(input.Target),
	}), "order status updated")

	return s.Get(ctx, order.ID, input.Actor)
}

// Cancel aborts an order and puts the reserved stock back. Both sides of the
// trade may cancel while the transition table still allows it.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !s.actorIsParty(input.Actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer or seller may cancel this order")
	}
	if err := ValidateTransition(order.Status, enums.OrderStatusCancelled); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	from := order.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, txErr := repo.UpdateStatusGuarded(ctx, order.ID, from, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": now,
			"updated_at":   now,
		})
		if txErr != nil {
			return txErr
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently").
				WithDetails(map[string]any{"order_id": order.ID.String()})
		}
		for _, item := range order.Items {
			if restoreErr := s.inventory.Restore(ctx, tx, item.ListingID, item.Quantity); restoreErr != nil {
				return restoreErr
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				CancelledAt: now,
				Reason:      input.Reason,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(from), string(enums.OrderStatusCancelled))
	ctx = s.logger.WithOrderID(ctx, order.ID.String())
	s.logger.Info(s.logger.WithField(ctx, "reason", input.Reason), "order cancelled")

	return s.Get(ctx, order.ID, input.Actor)
}

// Get loads one order. Only the buyer, the seller, or an admin may read it.
func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !s.actorIsParty(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	dto := ToOrderDTO(*order)
	return &dto, nil
}

// List pages through the actor's orders, buyers see their purchases and
// sellers their sales.
func (s *service) List(ctx context.Context, input ListInput) (*OrderList, error) {
	scope := ListScope{}
	switch input.Actor.Role {
	case enums.UserRoleSeller:
		scope.SellerID = &input.Actor.UserID
	default:
		scope.BuyerID = &input.Actor.UserID
	}

	rows, next, err := s.repo.List(ctx, scope, pagination.Params{
		Limit:  input.Limit,
		Cursor: input.Cursor,
	}, input.Status)
	if err != nil {
		return nil, err
	}

	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, ToOrderDTO(row))
	}
	return list, nil
}

func (s *service) actorIsSeller(actor Actor, order *models.Order) bool {
	if actor.Role == enums.UserRoleAdmin {
		return true
	}
	return actor.Role == enums.UserRoleSeller && actor.UserID == order.SellerID
}

func (s *service) actorIsParty(actor Actor, order *models.Order) bool {
	if actor.Role == enums.UserRoleAdmin {
		return true
	}
	return actor.UserID == order.BuyerID || actor.UserID == order.SellerID
}
