package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
)

type stubRepo struct {
	lines []Line
	err   error
}

func (s *stubRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubRepo) FindLines(context.Context, uuid.UUID) ([]Line, error) {
	return s.lines, s.err
}

func (s *stubRepo) Clear(context.Context, uuid.UUID) error { return nil }

func line(status enums.ListingStatus, stock, wanted int) Line {
	id := uuid.New()
	return Line{
		Item: models.CartItem{
			ID:        uuid.New(),
			ListingID: id,
			Quantity:  wanted,
		},
		Listing: models.Listing{
			ID:       id,
			Quantity: stock,
			Status:   status,
		},
	}
}

func TestRead_EmptyCart(t *testing.T) {
	t.Parallel()

	reader, err := NewSnapshotReader(&stubRepo{})
	require.NoError(t, err)

	_, err = reader.Read(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
}

func TestRead_ValidLines(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{lines: []Line{
		line(enums.ListingStatusActive, 5, 2),
		line(enums.ListingStatusActive, 1, 1),
	}}
	reader, err := NewSnapshotReader(repo)
	require.NoError(t, err)

	lines, err := reader.Read(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestRead_InsufficientStock(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{lines: []Line{
		line(enums.ListingStatusActive, 5, 2),
		line(enums.ListingStatusActive, 1, 3),
	}}
	reader, err := NewSnapshotReader(repo)
	require.NoError(t, err)

	_, err = reader.Read(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
}

func TestRead_ListingUnavailable(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{lines: []Line{
		line(enums.ListingStatusInactive, 5, 1),
	}}
	reader, err := NewSnapshotReader(repo)
	require.NoError(t, err)

	_, err = reader.Read(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeListingUnavailable))
}

func TestRead_MissingListing(t *testing.T) {
	t.Parallel()

	orphan := Line{Item: models.CartItem{ID: uuid.New(), ListingID: uuid.New(), Quantity: 1}}
	reader, err := NewSnapshotReader(&stubRepo{lines: []Line{orphan}})
	require.NoError(t, err)

	_, err = reader.Read(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeListingUnavailable))
}
