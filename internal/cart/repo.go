package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/pkg/db/models"
)

// Line pairs a cart item with the current state of its listing.
type Line struct {
	Item    models.CartItem
	Listing models.Listing
}

type repository struct {
	db *gorm.DB
}

// Repository exposes the cart persistence surface the conversion needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLines(ctx context.Context, buyerID uuid.UUID) ([]Line, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindLines loads the buyer's cart items joined with their listings, oldest
// first so order item ordering is stable.
func (r *repository) FindLines(ctx context.Context, buyerID uuid.UUID) ([]Line, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	listingIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		listingIDs = append(listingIDs, item.ListingID)
	}

	var listings []models.Listing
	if err := r.db.WithContext(ctx).Where("id IN ?", listingIDs).Find(&listings).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Listing, len(listings))
	for _, listing := range listings {
		byID[listing.ID] = listing
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{Item: item, Listing: byID[item.ListingID]})
	}
	return lines, nil
}

func (r *repository) Clear(ctx context.Context, buyerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Delete(&models.CartItem{}).Error
}
