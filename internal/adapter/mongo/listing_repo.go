package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/velomarket/listing-engine/internal/app/config"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const listingCollectionName = "listings"

type listingRepository struct {
	collection *mongo.Collection
}

func NewListingRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.ListingRepository {
	return &listingRepository{
		collection: client.Database(cfg.Database).Collection(listingCollectionName),
	}
}

func (r *listingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	_, err := r.collection.InsertOne(ctx, listing)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	var listing entity.Listing
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing %s: %w", id, err)
	}
	return &listing, nil
}

// Update replaces the listing document, filtering on the in-memory version
// so concurrent writers cannot silently overwrite each other.
func (r *listingRepository) Update(ctx context.Context, listing *entity.Listing) error {
	filter := bson.M{
		"_id":     listing.ID,
		"version": listing.Version,
	}

	next := *listing
	next.Version = listing.Version + 1

	res, err := r.collection.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return fmt.Errorf("failed to update listing %s: %w", listing.ID, err)
	}
	if res.MatchedCount == 0 {
		exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": listing.ID})
		if countErr == nil && exists == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrOptimisticLock
	}

	listing.Version = next.Version
	return nil
}

func (r *listingRepository) ListForSweep(ctx context.Context) ([]*entity.Listing, error) {
	filter := bson.M{
		"deleted_at":  bson.M{"$exists": false},
		"is_archived": false,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings for sweep: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []*entity.Listing
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings for sweep: %w", err)
	}
	return listings, nil
}
