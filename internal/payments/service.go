package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/pkg/config"
	"github.com/scraplink/scraplink-backend/pkg/db"
	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/gateway"
	"github.com/scraplink/scraplink-backend/pkg/logger"
	"github.com/scraplink/scraplink-backend/pkg/metrics"
	"github.com/scraplink/scraplink-backend/pkg/outbox"
	"github.com/scraplink/scraplink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type userFinder interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service exposes payment initiation and reads.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*PaymentDTO, error)
	Get(ctx context.Context, paymentID uuid.UUID, actor orders.Actor) (*PaymentDTO, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]PaymentDTO, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	orders  orders.Repository
	users   userFinder
	gateway gateway.Client
	events  outboxPublisher
	cfg     config.GatewayConfig
	metrics *metrics.EngineMetrics
	logger  *logger.Logger
	now     func() time.Time
}

// NewService wires the payment service.
func NewService(
	tx txRunner,
	repo Repository,
	orderRepo orders.Repository,
	users userFinder,
	gw gateway.Client,
	events outboxPublisher,
	cfg config.GatewayConfig,
	m *metrics.EngineMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if repo == nil {
		return nil, errors.New("payments repository is required")
	}
	if orderRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if users == nil {
		return nil, errors.New("user finder is required")
	}
	if gw == nil {
		return nil, errors.New("gateway client is required")
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
		tx:      tx,
		repo:    repo,
		orders:  orderRepo,
		users:   users,
		gateway: gw,
		events:  events,
		cfg:     cfg,
		metrics: m,
		logger:  logg,
		now:     time.Now,
	}, nil
}

// Initiate creates a payable at the gateway and records the pending attempt.
// The gateway is called before anything is written, so a gateway failure
// leaves no payment row behind and the buyer can simply retry.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*PaymentDTO, error) {
	if !input.Channel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment channel")
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != input.Buyer.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may pay for this order")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotPayable,
			"order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status.String()})
	}
	if pending, pendErr := s.repo.FindPendingByOrder(ctx, order.ID); pendErr != nil {
		return nil, pendErr
	} else if pending != nil {
		return nil, pkgerrors.New(pkgerrors.CodePaymentAlreadyPending,
			"order already has an open payment attempt").
			WithDetails(map[string]any{"payment_id": pending.ID.String()})
	}

	buyer, err := s.users.FindActiveByID(ctx, input.Buyer.UserID)
	if err != nil {
		return nil, err
	}

	started := s.now()
	payable, err := s.gateway.CreatePayable(ctx, gateway.CreatePayableInput{
		ReferenceID:   order.OrderNumber,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Channel:       input.Channel,
		ChannelParams: input.ChannelParams,
		Customer: gateway.Customer{
			ID:    buyer.ID.String(),
			Name:  buyer.Name,
			Email: buyer.Email,
		},
		ExpiresIn: s.cfg.InvoiceExpiry,
	})
	s.metrics.ObserveGatewayDuration("create_payable", s.now().Sub(started))
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:     order.ID,
		ExternalID:  payable.CorrelationID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Status:      enums.PaymentStatusPending,
		Channel:     input.Channel,
		VANumber:    optional(payable.Fields.VANumber),
		QRString:    optional(payable.Fields.QRString),
		RetailCode:  optional(payable.Fields.RetailCode),
		RedirectURL: optional(payable.Fields.RedirectURL),
	}
	if !payable.ExpiresAt.IsZero() {
		expiresAt := payable.ExpiresAt
		payment.ExpiresAt = &expiresAt
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, createErr := repo.Create(ctx, payment); createErr != nil {
			if db.IsUniqueViolation(createErr, "ux_payments_order_pending") {
				return pkgerrors.New(pkgerrors.CodePaymentAlreadyPending,
					"order already has an open payment attempt")
			}
			return createErr
		}
		if updErr := s.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.OrderPaymentStatusPending); updErr != nil {
			return updErr
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: input.Buyer.UserID, Role: string(input.Buyer.Role)},
			Data: payloads.PaymentInitiatedEvent{
				PaymentID:  payment.ID,
				OrderID:    order.ID,
				Channel:    payment.Channel,
				Amount:     payment.Amount,
				ExternalID: payment.ExternalID,
				ExpiresAt:  payment.ExpiresAt,
			},
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithPaymentID(s.logger.WithOrderID(ctx, order.ID.String()), payment.ID.String())
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"channel":     string(payment.Channel),
		"external_id": payment.ExternalID,
		"amount":      payment.Amount,
	}), "payment initiated")

	dto := ToPaymentDTO(*payment)
	return &dto, nil
}

// Get loads one payment, visible to the order's buyer, seller, or an admin.
func (s *service) Get(ctx context.Context, paymentID uuid.UUID, actor orders.Actor) (*PaymentDTO, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrderAccess(ctx, payment.OrderID, actor); err != nil {
		return nil, err
	}
	dto := ToPaymentDTO(*payment)
	return &dto, nil
}

// ListForOrder returns the order's payment attempts, newest first.
func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]PaymentDTO, error) {
	if err := s.authorizeOrderAccess(ctx, orderID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dtos := make([]PaymentDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ToPaymentDTO(row))
	}
	return dtos, nil
}

func (s *service) authorizeOrderAccess(ctx context.Context, orderID uuid.UUID, actor orders.Actor) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if actor.Role == enums.UserRoleAdmin {
		return nil
	}
	if actor.UserID != order.BuyerID && actor.UserID != order.SellerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
