package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
)

// SnapshotReader validates a buyer's cart against live listing state. It is
// read-only; the conversion re-checks stock with guarded decrements inside
// its transaction.
type SnapshotReader struct {
	repo Repository
}

// NewSnapshotReader constructs the reader.
func NewSnapshotReader(repo Repository) (*SnapshotReader, error) {
	if repo == nil {
		return nil, errors.New("cart repository is required")
	}
	return &SnapshotReader{repo: repo}, nil
}

// Read returns the buyer's validated cart lines. It fails on the first line
// whose listing is no longer orderable or lacks stock; no partial results.
func (s *SnapshotReader) Read(ctx context.Context, buyerID uuid.UUID) ([]Line, error) {
	lines, err := s.repo.FindLines(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no items")
	}

	for _, line := range lines {
		if line.Listing.ID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeListingUnavailable,
				fmt.Sprintf("listing %s no longer exists", line.Item.ListingID))
		}
		if !line.Listing.Status.IsOrderable() {
			return nil, pkgerrors.New(pkgerrors.CodeListingUnavailable,
				fmt.Sprintf("listing %s is %s", line.Listing.ID, line.Listing.Status)).
				WithDetails(map[string]any{"listing_id": line.Listing.ID.String()})
		}
		if line.Listing.Quantity < line.Item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("listing %s has %d left, cart wants %d",
					line.Listing.ID, line.Listing.Quantity, line.Item.Quantity)).
				WithDetails(map[string]any{
					"listing_id": line.Listing.ID.String(),
					"available":  line.Listing.Quantity,
					"requested":  line.Item.Quantity,
				})
		}
	}
	return lines, nil
}
