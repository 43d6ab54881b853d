package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one pending cart line for a buyer. Prices are not snapshotted
// here; the order conversion copies the listing price at commit time.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index:ux_cart_items_buyer_listing,unique"`
	ListingID uuid.UUID `gorm:"column:listing_id;type:uuid;not null;index:ux_cart_items_buyer_listing,unique"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
