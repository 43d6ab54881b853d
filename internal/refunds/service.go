package refunds

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/internal/payments"
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

// CreateInput requests money back against a captured payment.
type CreateInput struct {
	PaymentID uuid.UUID
	Actor     orders.Actor
	Amount    int64
	Reason    string
}

// RefundDTO is the transport shape of a refund claim.
type RefundDTO struct {
	ID          uuid.UUID          `json:"id"`
	PaymentID   uuid.UUID          `json:"payment_id"`
	Amount      int64              `json:"amount"`
	Reason      string             `json:"reason"`
	Status      enums.RefundStatus `json:"status"`
	ExternalID  *string            `json:"external_id,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toRefundDTO(refund models.Refund) RefundDTO {
	return RefundDTO{
		ID:          refund.ID,
		PaymentID:   refund.PaymentID,
		Amount:      refund.Amount,
		Reason:      refund.Reason,
		Status:      refund.Status,
		ExternalID:  refund.ExternalID,
		CompletedAt: refund.CompletedAt,
		CreatedAt:   refund.CreatedAt,
	}
}

// Service coordinates refund creation against the gateway and the optimistic
// order cascade when a refund covers the full captured amount.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*RefundDTO, error)
	ListForPayment(ctx context.Context, paymentID uuid.UUID, actor orders.Actor) ([]RefundDTO, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	payments payments.Repository
	orders   orders.Repository
	gateway  gateway.Client
	events   outboxPublisher
	metrics  *metrics.EngineMetrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewService wires the refund coordinator.
func NewService(
	tx txRunner,
	repo Repository,
	paymentRepo payments.Repository,
	orderRepo orders.Repository,
	gw gateway.Client,
	events outboxPublisher,
	m *metrics.EngineMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if repo == nil {
		return nil, errors.New("refunds repository is required")
	}
	if paymentRepo == nil {
		return nil, errors.New("payments repository is required")
	}
	if orderRepo == nil {
		return nil, errors.New("orders repository is required")
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
		tx:       tx,
		repo:     repo,
		payments: paymentRepo,
		orders:   orderRepo,
		gateway:  gw,
		events:   events,
		metrics:  m,
		logger:   logg,
		now:      time.Now,
	}, nil
}

// Create validates the claim, files it at the gateway, and persists the
// refund. A claim that covers the whole captured amount also flips the order
// terminal; the gateway's eventual settlement is trusted optimistically.
func (s *service) Create(ctx context.Context, input CreateInput) (*RefundDTO, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}

	payment, err := s.payments.FindByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsCaptured() {
		return nil, pkgerrors.New(pkgerrors.CodeNotRefundable,
			"payment has not been captured").
			WithDetails(map[string]any{"status": payment.Status.String()})
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Actor.Role != enums.UserRoleAdmin &&
		input.Actor.UserID != order.BuyerID && input.Actor.UserID != order.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "refund may only be requested by the buyer or seller")
	}

	alreadyReturned, err := s.repo.SumCompletedByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	refundable := payment.Amount - alreadyReturned
	if input.Amount > refundable {
		return nil, pkgerrors.New(pkgerrors.CodeRefundExceedsBalance,
			"refund exceeds the remaining refundable amount").
			WithDetails(map[string]any{
				"requested":  input.Amount,
				"refundable": refundable,
			})
	}

	started := s.now()
	result, err := s.gateway.CreateRefund(ctx, gateway.CreateRefundInput{
		CorrelationID: payment.ExternalID,
		Amount:        input.Amount,
		Reason:        input.Reason,
	})
	s.metrics.ObserveGatewayDuration("create_refund", s.now().Sub(started))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	refund := &models.Refund{
		PaymentID: payment.ID,
		Amount:    input.Amount,
		Reason:    input.Reason,
		Status:    mapRefundStatus(result.Status),
	}
	if result.RefundCorrelationID != "" {
		external := result.RefundCorrelationID
		refund.ExternalID = &external
	}
	if refund.Status == enums.RefundStatusCompleted {
		refund.CompletedAt = &now
	}

	var fullRefund bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Re-check the balance under the transaction. A concurrent claim on
		// the same payment may have committed since the pre-gateway check.
		committed, sumErr := repo.SumCompletedByPayment(ctx, payment.ID)
		if sumErr != nil {
			return sumErr
		}
		remaining := payment.Amount - committed
		if input.Amount > remaining {
			return pkgerrors.New(pkgerrors.CodeRefundExceedsBalance,
				"refund exceeds the remaining refundable amount").
				WithDetails(map[string]any{
					"requested":  input.Amount,
					"refundable": remaining,
				})
		}
		fullRefund = input.Amount == remaining

		if _, createErr := repo.Create(ctx, refund); createErr != nil {
			return createErr
		}
		if emitErr := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundCreated,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.RefundCreatedEvent{
				RefundID:   refund.ID,
				PaymentID:  payment.ID,
				OrderID:    order.ID,
				Amount:     refund.Amount,
				Reason:     refund.Reason,
				Status:     refund.Status,
				ExternalID: result.RefundCorrelationID,
			},
			OccurredAt: now,
		}); emitErr != nil {
			return emitErr
		}
		if !fullRefund {
			return nil
		}
		return s.cascadeFullRefund(ctx, tx, order, payment, refund, input.Actor, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund(string(refund.Status))
	ctx = s.logger.WithPaymentID(s.logger.WithOrderID(ctx, order.ID.String()), payment.ID.String())
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"refund_id": refund.ID.String(),
		"amount":    refund.Amount,
		"full":      fullRefund,
	}), "refund created")

	dto := toRefundDTO(*refund)
	return &dto, nil
}

// cascadeFullRefund flips the order terminal on the spot rather than waiting
// for the gateway's settlement callback. A cascade that loses the status race
// is logged and skipped; the refund row itself is already committed.
func (s *service) cascadeFullRefund(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, refund *models.Refund, actor orders.Actor, now time.Time) error {
	orderRepo := s.orders.WithTx(tx)

	flipped, err := orderRepo.UpdateStatusGuarded(ctx, order.ID, order.Status, enums.OrderStatusRefunded, nil)
	if err != nil {
		return err
	}
	if !flipped {
		s.logger.Warn(s.logger.WithOrderID(ctx, order.ID.String()),
			"order status moved during refund, terminal flip skipped")
		return nil
	}
	if err := orderRepo.UpdatePaymentStatus(ctx, order.ID, enums.OrderPaymentStatusRefunded); err != nil {
		return err
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: payloads.OrderRefundedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			PaymentID:   payment.ID,
			RefundID:    refund.ID,
			Amount:      refund.Amount,
		},
		OccurredAt: now,
	})
}

// ListForPayment returns a payment's refund claims, newest first.
func (s *service) ListForPayment(ctx context.Context, paymentID uuid.UUID, actor orders.Actor) ([]RefundDTO, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.UserRoleAdmin &&
		actor.UserID != order.BuyerID && actor.UserID != order.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "refunds belong to another user")
	}

	rows, err := s.repo.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	dtos := make([]RefundDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toRefundDTO(row))
	}
	return dtos, nil
}

// mapRefundStatus normalizes the gateway's refund vocabulary. Anything not
// clearly terminal stays pending until a later reconciliation.
func mapRefundStatus(raw string) enums.RefundStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCEEDED", "COMPLETED":
		return enums.RefundStatusCompleted
	case "FAILED":
		return enums.RefundStatusFailed
	default:
		return enums.RefundStatusPending
	}
}
