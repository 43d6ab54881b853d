package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// Listing is a seller's waste-material offer. The transaction engine only reads
// price/weight snapshots and mutates Quantity through the inventory ledger.
type Listing struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title       string              `gorm:"column:title;not null"`
	UnitPrice   int64               `gorm:"column:unit_price;not null"`
	Quantity    int                 `gorm:"column:quantity;not null;default:0"`
	WeightGrams int                 `gorm:"column:weight_grams;not null;default:0"`
	Status      enums.ListingStatus `gorm:"column:status;type:listing_status;not null;default:'active'"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
