package repository

import (
	"context"

	"github.com/velomarket/listing-engine/internal/domain/entity"
)

// ListingRepository is the abstract store for listings. Update uses the
// entity's Version for optimistic locking and bumps it on success.
type ListingRepository interface {
	Create(ctx context.Context, listing *entity.Listing) error
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
	Update(ctx context.Context, listing *entity.Listing) error

	// ListForSweep returns all non-deleted, non-archived listings. The
	// expiration sweep walks this set once per run.
	ListForSweep(ctx context.Context) ([]*entity.Listing, error)
}
