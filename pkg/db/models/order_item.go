package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is the immutable snapshot of one listing at purchase time. The unit
// price is copied from the listing when the order commits, never looked up live.
type OrderItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ListingID  uuid.UUID `gorm:"column:listing_id;type:uuid;not null"`
	Name       string    `gorm:"column:name;not null"`
	UnitPrice  int64     `gorm:"column:unit_price;not null"`
	Quantity   int       `gorm:"column:quantity;not null"`
	TotalPrice int64     `gorm:"column:total_price;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
