package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// OrderCreatedEvent signals a cart was converted into one or more orders.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
}

// OrderStatusChangedEvent is emitted on every lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// OrderCancelledEvent reports a cancellation and the stock returned to listings.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderRefundedEvent is emitted when a full refund flips the order terminal.
type OrderRefundedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	PaymentID   uuid.UUID `json:"payment_id"`
	RefundID    uuid.UUID `json:"refund_id"`
	Amount      int64     `json:"amount"`
}

// PaymentInitiatedEvent records that a payable was created at the gateway.
type PaymentInitiatedEvent struct {
	PaymentID  uuid.UUID            `json:"payment_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	Channel    enums.PaymentChannel `json:"channel"`
	Amount     int64                `json:"amount"`
	ExternalID string               `json:"external_id"`
	ExpiresAt  *time.Time           `json:"expires_at,omitempty"`
}

// PaymentPaidEvent is emitted once per payment on the first capture callback.
type PaymentPaidEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Amount     int64     `json:"amount"`
	ExternalID string    `json:"external_id"`
	PaidAt     time.Time `json:"paid_at"`
}

// PaymentFailedEvent is emitted when the gateway reports a terminal failure.
type PaymentFailedEvent struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ExternalID    string    `json:"external_id"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// PaymentExpiredEvent is emitted when a payable lapses unpaid.
type PaymentExpiredEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	OrderID    uuid.UUID `json:"order_id"`
	ExternalID string    `json:"external_id"`
}

// RefundCreatedEvent records a refund accepted by the gateway.
type RefundCreatedEvent struct {
	RefundID   uuid.UUID          `json:"refund_id"`
	PaymentID  uuid.UUID          `json:"payment_id"`
	OrderID    uuid.UUID          `json:"order_id"`
	Amount     int64              `json:"amount"`
	Reason     string             `json:"reason,omitempty"`
	Status     enums.RefundStatus `json:"status"`
	ExternalID string             `json:"external_id,omitempty"`
}
