package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// Order is one purchase transaction between exactly one buyer and one seller.
// Totals are fixed at creation (TotalAmount = Subtotal + ShippingFee + TaxAmount)
// and never recomputed afterward. Status only moves through the transition table
// in internal/orders; transition timestamps are set once, on first entry.
type Order struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                   `gorm:"column:order_number;not null;unique"`
	BuyerID         uuid.UUID                `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID        uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;index"`
	Subtotal        int64                    `gorm:"column:subtotal;not null"`
	ShippingFee     int64                    `gorm:"column:shipping_fee;not null;default:0"`
	TaxAmount       int64                    `gorm:"column:tax_amount;not null;default:0"`
	TotalAmount     int64                    `gorm:"column:total_amount;not null"`
	Currency        enums.Currency           `gorm:"column:currency;type:text;not null;default:'IDR'"`
	Status          enums.OrderStatus        `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus   enums.OrderPaymentStatus `gorm:"column:payment_status;type:order_payment_status;not null;default:'unpaid'"`
	ShippingAddress json.RawMessage          `gorm:"column:shipping_address;type:jsonb"`
	TrackingNumber  *string                  `gorm:"column:tracking_number"`
	Courier         *string                  `gorm:"column:courier"`
	ConfirmedAt     *time.Time               `gorm:"column:confirmed_at"`
	ShippedAt       *time.Time               `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time               `gorm:"column:delivered_at"`
	CancelledAt     *time.Time               `gorm:"column:cancelled_at"`
	Items           []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
