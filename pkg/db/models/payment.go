package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// Payment is one attempt to collect an order's total via one channel. ExternalID
// is the gateway correlation id used to match webhook deliveries; it is the
// idempotency key for reconciliation. Several payments may exist per order over
// time but at most one may be pending.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	ExternalID    string              `gorm:"column:external_id;not null;unique"`
	Amount        int64               `gorm:"column:amount;not null"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null;default:'IDR'"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Channel       enums.PaymentChannel `gorm:"column:channel;type:payment_channel;not null"`
	VANumber      *string             `gorm:"column:va_number"`
	QRString      *string             `gorm:"column:qr_string"`
	RetailCode    *string             `gorm:"column:retail_code"`
	RedirectURL   *string             `gorm:"column:redirect_url"`
	ExpiresAt     *time.Time          `gorm:"column:expires_at"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	FailureReason *string             `gorm:"column:failure_reason"`
	Refunds       []Refund            `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
