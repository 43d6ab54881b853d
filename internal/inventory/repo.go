package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
)

// Repository is the inventory ledger over listing quantities. Decrements are
// guarded at the row level so two concurrent buyers cannot drive a listing
// below zero.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// FindListing loads a listing by id.
func (r *Repository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return r.findListing(ctx, nil, id)
}

func (r *Repository) findListing(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.conn(tx).WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, err
	}
	return &listing, nil
}

// Decrement reserves quantity from a listing. The update is conditioned on
// the listing still being orderable with enough stock; zero rows affected
// means another buyer got there first.
func (r *Repository) Decrement(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE listings
		 SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND quantity >= ?`,
		quantity, listingID, enums.ListingStatusActive, quantity,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyDecrementFailure(ctx, tx, listingID, quantity)
	}

	// A listing that just sold its last unit flips to sold_out. Racing with a
	// restore here is harmless: restore reactivates unconditionally.
	return r.conn(tx).WithContext(ctx).Exec(
		`UPDATE listings SET status = ? WHERE id = ? AND quantity = 0 AND status = ?`,
		enums.ListingStatusSoldOut, listingID, enums.ListingStatusActive,
	).Error
}

// Restore returns quantity to a listing after a cancellation and reactivates
// it if it had sold out.
func (r *Repository) Restore(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE listings
		 SET quantity = quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		quantity, listingID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}

	// Sellers who deactivated the listing keep it inactive; only sold_out
	// flips back to active.
	return r.conn(tx).WithContext(ctx).Exec(
		`UPDATE listings SET status = ? WHERE id = ? AND status = ?`,
		enums.ListingStatusActive, listingID, enums.ListingStatusSoldOut,
	).Error
}

func (r *Repository) classifyDecrementFailure(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, quantity int) error {
	listing, err := r.findListing(ctx, tx, listingID)
	if err != nil {
		return err
	}
	if listing.Status != enums.ListingStatusActive {
		return pkgerrors.New(pkgerrors.CodeListingUnavailable,
			fmt.Sprintf("listing %s is %s", listingID, listing.Status))
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock,
		fmt.Sprintf("listing %s has %d left, requested %d", listingID, listing.Quantity, quantity)).
		WithDetails(map[string]any{
			"listing_id": listingID.String(),
			"available":  listing.Quantity,
			"requested":  quantity,
		})
}
