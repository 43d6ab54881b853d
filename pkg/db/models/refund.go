package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// Refund is a claim against a captured payment. The sum of completed refund
// amounts for a payment must never exceed the payment amount; the refund
// coordinator enforces this inside the creating transaction.
type Refund struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID   uuid.UUID          `gorm:"column:payment_id;type:uuid;not null;index"`
	Amount      int64              `gorm:"column:amount;not null"`
	Reason      string             `gorm:"column:reason;not null"`
	Status      enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'pending'"`
	ExternalID  *string            `gorm:"column:external_id"`
	CompletedAt *time.Time         `gorm:"column:completed_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
