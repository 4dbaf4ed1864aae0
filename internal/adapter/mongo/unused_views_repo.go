package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/velomarket/listing-engine/internal/app/config"
	"github.com/velomarket/listing-engine/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const unusedViewsCollectionName = "unused_views"

type unusedViewsDoc struct {
	OwnerID   string    `bson:"_id"`
	Views     int64     `bson:"views"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type unusedViewsRepository struct {
	collection *mongo.Collection
}

func NewUnusedViewsRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.UnusedViewsRepository {
	return &unusedViewsRepository{
		collection: client.Database(cfg.Database).Collection(unusedViewsCollectionName),
	}
}

func (r *unusedViewsRepository) Get(ctx context.Context, ownerID string) (int64, error) {
	var doc unusedViewsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get unused views for owner %s: %w", ownerID, err)
	}
	return doc.Views, nil
}

func (r *unusedViewsRepository) Add(ctx context.Context, ownerID string, views int64) error {
	if views <= 0 {
		return nil
	}

	update := bson.M{
		"$inc": bson.M{"views": views},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	_, err := r.collection.UpdateByID(ctx, ownerID, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to add unused views for owner %s: %w", ownerID, err)
	}
	return nil
}

func (r *unusedViewsRepository) Reset(ctx context.Context, ownerID string) error {
	update := bson.M{
		"$set": bson.M{"views": int64(0), "updated_at": time.Now().UTC()},
	}
	_, err := r.collection.UpdateByID(ctx, ownerID, update)
	if err != nil {
		return fmt.Errorf("failed to reset unused views for owner %s: %w", ownerID, err)
	}
	return nil
}
