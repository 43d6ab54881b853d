package gatewaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/multierr"
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

// Outcome classifies what a callback delivery did. Every outcome acknowledges
// the delivery; gateways retry on transport errors only.
type Outcome string

const (
	OutcomeApplied   Outcome = metrics.WebhookResultApplied
	OutcomeDuplicate Outcome = metrics.WebhookResultDuplicate
	OutcomeUnmatched Outcome = metrics.WebhookResultUnmatched
	OutcomeIgnored   Outcome = metrics.WebhookResultIgnored
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service reconciles asynchronous gateway callbacks against payment rows. All
// state changes are compare-and-set so redelivered events settle as no-ops.
type Service struct {
	tx       txRunner
	payments payments.Repository
	orders   orders.Repository
	events   outboxPublisher
	guard    *IdempotencyGuard
	metrics  *metrics.EngineMetrics
	logger   *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	TransactionRunner txRunner
	PaymentRepo       payments.Repository
	OrderRepo         orders.Repository
	Events            outboxPublisher
	Guard             *IdempotencyGuard
	Metrics           *metrics.EngineMetrics
	Logger            *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.PaymentRepo == nil {
		return nil, errors.New("payments repository is required")
	}
	if params.OrderRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Events == nil {
		return nil, errors.New("outbox publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewEngineMetrics(nil)
	}
	return &Service{
		tx:       params.TransactionRunner,
		payments: params.PaymentRepo,
		orders:   params.OrderRepo,
		events:   params.Events,
		guard:    params.Guard,
		metrics:  m,
		logger:   params.Logger,
		now:      time.Now,
	}, nil
}

// HandleCallback applies one gateway delivery. Unmatched, duplicate, and
// unknown-status deliveries are acknowledged without error so the gateway
// stops redelivering them; only infrastructure failures return an error.
func (s *Service) HandleCallback(ctx context.Context, event gateway.CallbackEvent) (Outcome, error) {
	ctx = s.logger.WithFields(ctx, map[string]any{
		"event_id":   event.EventID,
		"invoice_id": event.InvoiceID,
		"status":     event.Status,
	})

	if s.guard != nil && event.EventID != "" {
		seen, err := s.guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			// Redis being down must not block reconciliation; the guarded
			// update below still makes redelivery safe.
			s.logger.Warn(ctx, "idempotency guard unavailable, continuing")
		} else if seen {
			s.metrics.IncWebhookEvent(metrics.WebhookResultDuplicate)
			s.logger.Info(ctx, "duplicate callback delivery dropped")
			return OutcomeDuplicate, nil
		}
	}

	target, known := mapCallbackStatus(event.Status)
	if !known {
		s.metrics.IncWebhookEvent(metrics.WebhookResultIgnored)
		s.logger.Info(ctx, "callback status not handled")
		return OutcomeIgnored, nil
	}

	payment, err := s.payments.FindByExternalRef(ctx, event.InvoiceID, event.PaymentID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.metrics.IncWebhookEvent(metrics.WebhookResultUnmatched)
			s.logger.Warn(ctx, "callback matches no payment")
			return OutcomeUnmatched, nil
		}
		return "", err
	}
	ctx = s.logger.WithPaymentID(s.logger.WithOrderID(ctx, payment.OrderID.String()), payment.ID.String())

	var applied bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		applied, txErr = s.apply(ctx, tx, payment, target, event)
		return txErr
	})
	if err != nil {
		if s.guard != nil && event.EventID != "" {
			// Let the gateway's retry take another pass at this event.
			if relErr := s.guard.Release(ctx, event.EventID); relErr != nil {
				s.logger.Warn(ctx, "failed to release idempotency mark")
				err = multierr.Append(err, relErr)
			}
		}
		return "", err
	}

	if !applied {
		s.metrics.IncWebhookEvent(metrics.WebhookResultDuplicate)
		s.logger.Info(ctx, "payment already reconciled, callback ignored")
		return OutcomeDuplicate, nil
	}

	s.metrics.IncWebhookEvent(metrics.WebhookResultApplied)
	s.logger.Info(s.logger.WithField(ctx, "payment_status", string(target)), "callback applied")
	return OutcomeApplied, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, payment *models.Payment, target enums.PaymentStatus, event gateway.CallbackEvent) (bool, error) {
	paymentRepo := s.payments.WithTx(tx)
	orderRepo := s.orders.WithTx(tx)
	now := s.now().UTC()

	switch target {
	case enums.PaymentStatusPaid, enums.PaymentStatusSettled:
		paidAt := now
		if event.PaidAt != nil {
			paidAt = event.PaidAt.UTC()
		}

		if target == enums.PaymentStatusSettled {
			// Settlement may arrive after the capture callback; promote from
			// either state, cascading only if the capture was never seen.
			if promoted, err := paymentRepo.UpdateStatusGuarded(ctx, payment.ID, enums.PaymentStatusPaid, enums.PaymentStatusSettled, nil); err != nil {
				return false, err
			} else if promoted {
				return true, nil
			}
		}

		applied, err := paymentRepo.UpdateStatusGuarded(ctx, payment.ID, enums.PaymentStatusPending, target, map[string]any{
			"paid_at": paidAt,
		})
		if err != nil || !applied {
			return applied, err
		}

		// First capture confirms the order. The guard tolerates the order
		// having been cancelled in the race window; payment status still
		// records the money as collected.
		confirmed, err := orderRepo.UpdateStatusGuarded(ctx, payment.OrderID,
			enums.OrderStatusPending, enums.OrderStatusConfirmed, map[string]any{
				"confirmed_at": now,
			})
		if err != nil {
			return false, err
		}
		if !confirmed {
			s.logger.Warn(ctx, "payment captured but order left pending state")
		}
		if err := orderRepo.UpdatePaymentStatus(ctx, payment.OrderID, enums.OrderPaymentStatusPaid); err != nil {
			return false, err
		}
		return true, s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentPaid,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentPaidEvent{
				PaymentID:  payment.ID,
				OrderID:    payment.OrderID,
				Amount:     payment.Amount,
				ExternalID: payment.ExternalID,
				PaidAt:     paidAt,
			},
			OccurredAt: now,
		})

	case enums.PaymentStatusFailed:
		updates := map[string]any{}
		if reason := failureReason(event); reason != "" {
			updates["failure_reason"] = reason
		}
		applied, err := paymentRepo.UpdateStatusGuarded(ctx, payment.ID, enums.PaymentStatusPending, target, updates)
		if err != nil || !applied {
			return applied, err
		}
		if err := orderRepo.UpdatePaymentStatus(ctx, payment.OrderID, enums.OrderPaymentStatusFailed); err != nil {
			return false, err
		}
		return true, s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentFailedEvent{
				PaymentID:     payment.ID,
				OrderID:       payment.OrderID,
				ExternalID:    payment.ExternalID,
				FailureReason: failureReason(event),
			},
			OccurredAt: now,
		})

	case enums.PaymentStatusExpired:
		applied, err := paymentRepo.UpdateStatusGuarded(ctx, payment.ID, enums.PaymentStatusPending, target, nil)
		if err != nil || !applied {
			return applied, err
		}
		if err := orderRepo.UpdatePaymentStatus(ctx, payment.OrderID, enums.OrderPaymentStatusExpired); err != nil {
			return false, err
		}
		return true, s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentExpired,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentExpiredEvent{
				PaymentID:  payment.ID,
				OrderID:    payment.OrderID,
				ExternalID: payment.ExternalID,
			},
			OccurredAt: now,
		})
	}

	return false, nil
}

// mapCallbackStatus normalizes the gateway's status vocabulary onto payment
// statuses. Unrecognized values are acknowledged without side effects.
func mapCallbackStatus(raw string) (enums.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "SUCCEEDED", "COMPLETED":
		return enums.PaymentStatusPaid, true
	case "SETTLED":
		return enums.PaymentStatusSettled, true
	case "EXPIRED":
		return enums.PaymentStatusExpired, true
	case "FAILED":
		return enums.PaymentStatusFailed, true
	default:
		return "", false
	}
}

func failureReason(event gateway.CallbackEvent) string {
	var payload struct {
		FailureReason string `json:"failure_reason"`
		FailureCode   string `json:"failure_code"`
	}
	if len(event.RawPayload) > 0 {
		_ = json.Unmarshal(event.RawPayload, &payload)
	}
	if payload.FailureReason != "" {
		return payload.FailureReason
	}
	return payload.FailureCode
}
